package library

import (
	"errors"
	"fmt"
	"strings"
)

func authorFromRecord(rec AuthorRecord) (*Author, error) {
	a, err := NewAuthor(rec.Firstname, rec.Lastname, rec.Description)
	if err != nil {
		return nil, err
	}
	if err := a.SetID(rec.ID); err != nil {
		return nil, err
	}
	a.setDeleted(rec.Deleted)
	return a, nil
}

func (a *Author) record() AuthorRecord {
	return AuthorRecord{ID: a.id, Firstname: a.firstname, Lastname: a.lastname, Description: a.description, Deleted: a.deleted}
}

// AuthorHandler manages authors. Authors referenced by items cannot be removed.
type AuthorHandler struct {
	handler
}

func NewAuthorHandler(db *Database, index *Index) *AuthorHandler {
	return &AuthorHandler{handler: newHandler(db, index)}
}

func (h *AuthorHandler) CreateAuthor(firstname, lastname, description string) (*Author, error) {
	a, err := NewAuthor(firstname, lastname, description)
	if err != nil {
		return nil, err
	}
	id, err := h.db.InsertAuthor(a.record())
	if err != nil {
		return nil, h.infraFailure("create author", err)
	}
	if err := a.SetID(id); err != nil {
		return nil, err
	}
	h.logger.Info("author created", "author_id", id, "name", a.FullName())
	return a, nil
}

func (h *AuthorHandler) GetAuthor(id int64, mode LookupMode) (*Author, error) {
	if err := checkID("authorID", id); err != nil {
		return nil, err
	}
	rec, err := h.db.GetAuthor(id, mode)
	if err != nil {
		return nil, h.infraFailure("get author", err)
	}
	return authorFromRecord(rec)
}

func (h *AuthorHandler) authors(recs []AuthorRecord, err error) ([]*Author, error) {
	if err != nil {
		return nil, h.infraFailure("find authors", err)
	}
	out := make([]*Author, 0, len(recs))
	for _, rec := range recs {
		a, err := authorFromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// ListAuthors returns authors ordered by id.
func (h *AuthorHandler) ListAuthors(mode LookupMode) ([]*Author, error) {
	return h.authors(h.db.FindAuthors("", "", mode))
}

// FindAuthors matches the name parts case-insensitively. At least one is needed.
func (h *AuthorHandler) FindAuthors(firstname, lastname string) ([]*Author, error) {
	firstname, lastname = strings.TrimSpace(firstname), strings.TrimSpace(lastname)
	if firstname == "" && lastname == "" {
		return nil, invalid(ErrInvalidName, "author", "firstname and lastname are both empty")
	}
	return h.authors(h.db.FindAuthors(firstname, lastname, ActiveOnly))
}

// UpdateAuthor replaces name and description of an active author. A nil
// description is left alone.
func (h *AuthorHandler) UpdateAuthor(id int64, firstname, lastname string, description *string) (*Author, error) {
	a, err := h.GetAuthor(id, ActiveOnly)
	if err != nil {
		return nil, err
	}
	if err := a.SetName(firstname, lastname); err != nil {
		return nil, err
	}
	if description != nil {
		if err := a.SetDescription(*description); err != nil {
			return nil, err
		}
	}
	if err := h.db.UpdateAuthor(a.record()); err != nil {
		return nil, h.infraFailure("update author", err)
	}
	return a, nil
}

func (h *AuthorHandler) setDeleted(id int64, deleted bool) (*Author, error) {
	from := ActiveOnly
	if !deleted {
		from = DeletedOnly
	}
	a, err := h.GetAuthor(id, from)
	if err != nil {
		return nil, err
	}
	a.setDeleted(deleted)
	if err := h.db.UpdateAuthor(a.record()); err != nil {
		return nil, h.infraFailure("update author", err)
	}
	return a, nil
}

// SoftDeleteAuthor hides the author from searches and from new items.
func (h *AuthorHandler) SoftDeleteAuthor(id int64) (*Author, error) { return h.setDeleted(id, true) }

func (h *AuthorHandler) RecoverAuthor(id int64) (*Author, error) { return h.setDeleted(id, false) }

func (h *AuthorHandler) HardDeleteAuthor(id int64) error {
	if _, err := h.GetAuthor(id, IncludeDeleted); err != nil {
		return err
	}
	n, err := h.db.CountItemsReferencing("author_id", id)
	if err != nil {
		return h.infraFailure("hard delete author", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: author %d is referenced by %d item(s)", ErrDeleteNotAllowed, id, n)
	}
	if err := h.db.DeleteAuthor(id); err != nil {
		return h.infraFailure("hard delete author", err)
	}
	h.logger.Info("author removed", "author_id", id)
	return nil
}

func classificationFromRecord(rec ClassificationRecord) (*Classification, error) {
	c, err := NewClassification(rec.Name, rec.Description)
	if err != nil {
		return nil, err
	}
	if err := c.SetID(rec.ID); err != nil {
		return nil, err
	}
	c.setDeleted(rec.Deleted)
	return c, nil
}

func (c *Classification) record() ClassificationRecord {
	return ClassificationRecord{ID: c.id, Name: c.name, Description: c.description, Deleted: c.deleted}
}

// ClassificationHandler manages classifications. Names are unique regardless
// of case, including among soft-deleted rows.
type ClassificationHandler struct {
	handler
}

func NewClassificationHandler(db *Database, index *Index) *ClassificationHandler {
	return &ClassificationHandler{handler: newHandler(db, index)}
}

func (h *ClassificationHandler) nameTaken(name string, self int64) error {
	rec, err := h.db.GetClassificationByName(name, IncludeDeleted)
	switch {
	case errors.Is(err, ErrEntityNotFound):
		return nil
	case err != nil:
		return h.infraFailure("get classification", err)
	case rec.ID != self:
		return invalid(ErrNotUnique, "classification", "%q already exists", name)
	}
	return nil
}

func (h *ClassificationHandler) CreateClassification(name, description string) (*Classification, error) {
	c, err := NewClassification(name, description)
	if err != nil {
		return nil, err
	}
	if err := h.nameTaken(c.Name(), 0); err != nil {
		return nil, err
	}
	id, err := h.db.InsertClassification(c.record())
	if err != nil {
		return nil, h.infraFailure("create classification", err)
	}
	if err := c.SetID(id); err != nil {
		return nil, err
	}
	h.logger.Info("classification created", "classification_id", id, "name", c.Name())
	return c, nil
}

func (h *ClassificationHandler) GetClassification(id int64, mode LookupMode) (*Classification, error) {
	if err := checkID("classificationID", id); err != nil {
		return nil, err
	}
	rec, err := h.db.GetClassification(id, mode)
	if err != nil {
		return nil, h.infraFailure("get classification", err)
	}
	return classificationFromRecord(rec)
}

func (h *ClassificationHandler) GetClassificationByName(name string, mode LookupMode) (*Classification, error) {
	rec, err := h.db.GetClassificationByName(strings.TrimSpace(name), mode)
	if err != nil {
		return nil, h.infraFailure("get classification", err)
	}
	return classificationFromRecord(rec)
}

// ListClassifications returns classifications ordered by id.
func (h *ClassificationHandler) ListClassifications(mode LookupMode) ([]*Classification, error) {
	recs, err := h.db.ListClassifications(mode)
	if err != nil {
		return nil, h.infraFailure("list classifications", err)
	}
	out := make([]*Classification, 0, len(recs))
	for _, rec := range recs {
		c, err := classificationFromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// UpdateClassification renames an active classification. A nil description is
// left alone.
func (h *ClassificationHandler) UpdateClassification(id int64, name string, description *string) (*Classification, error) {
	c, err := h.GetClassification(id, ActiveOnly)
	if err != nil {
		return nil, err
	}
	if err := c.SetName(name); err != nil {
		return nil, err
	}
	if err := h.nameTaken(c.Name(), id); err != nil {
		return nil, err
	}
	if description != nil {
		if err := c.SetDescription(*description); err != nil {
			return nil, err
		}
	}
	if err := h.db.UpdateClassification(c.record()); err != nil {
		return nil, h.infraFailure("update classification", err)
	}
	return c, nil
}

func (h *ClassificationHandler) setDeleted(id int64, deleted bool) (*Classification, error) {
	from := ActiveOnly
	if !deleted {
		from = DeletedOnly
	}
	c, err := h.GetClassification(id, from)
	if err != nil {
		return nil, err
	}
	c.setDeleted(deleted)
	if err := h.db.UpdateClassification(c.record()); err != nil {
		return nil, h.infraFailure("update classification", err)
	}
	return c, nil
}

func (h *ClassificationHandler) SoftDeleteClassification(id int64) (*Classification, error) {
	return h.setDeleted(id, true)
}

func (h *ClassificationHandler) RecoverClassification(id int64) (*Classification, error) {
	return h.setDeleted(id, false)
}

func (h *ClassificationHandler) HardDeleteClassification(id int64) error {
	if _, err := h.GetClassification(id, IncludeDeleted); err != nil {
		return err
	}
	n, err := h.db.CountItemsReferencing("classification_id", id)
	if err != nil {
		return h.infraFailure("hard delete classification", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: classification %d is referenced by %d item(s)", ErrDeleteNotAllowed, id, n)
	}
	if err := h.db.DeleteClassification(id); err != nil {
		return h.infraFailure("hard delete classification", err)
	}
	h.logger.Info("classification removed", "classification_id", id)
	return nil
}
