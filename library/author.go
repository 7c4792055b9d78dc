package library

import "strings"

// Author is referenced by items.
type Author struct {
	Entity

	id          int64
	firstname   string
	lastname    string
	description string
}

// NewAuthor needs at least one of firstname and lastname.
func NewAuthor(firstname, lastname, description string) (*Author, error) {
	a := &Author{}
	if err := a.SetName(firstname, lastname); err != nil {
		return nil, err
	}
	if err := a.SetDescription(description); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Author) ID() int64           { return a.id }
func (a *Author) Firstname() string   { return a.firstname }
func (a *Author) Lastname() string    { return a.lastname }
func (a *Author) Description() string { return a.description }

func (a *Author) FullName() string {
	return strings.TrimSpace(a.firstname + " " + a.lastname)
}

func (a *Author) SetID(id int64) error {
	if err := checkID("authorID", id); err != nil {
		return err
	}
	a.id = id
	return nil
}

func (a *Author) SetName(firstname, lastname string) error {
	if err := checkAuthorName(firstname, lastname); err != nil {
		return err
	}
	a.firstname = strings.TrimSpace(firstname)
	a.lastname = strings.TrimSpace(lastname)
	return nil
}

func (a *Author) SetDescription(description string) error {
	if err := checkText(ErrInvalidDescription, "description", description, 0, limits.DescriptionMax); err != nil {
		return err
	}
	a.description = description
	return nil
}

func checkAuthorName(firstname, lastname string) error {
	if strings.TrimSpace(firstname) == "" && strings.TrimSpace(lastname) == "" {
		return invalid(ErrInvalidName, "author", "firstname and lastname are both empty")
	}
	if err := checkText(ErrInvalidName, "firstname", firstname, 0, limits.NameMax); err != nil {
		return err
	}
	return checkText(ErrInvalidName, "lastname", lastname, 0, limits.NameMax)
}

// Classification groups items by subject.
type Classification struct {
	Entity

	id          int64
	name        string
	description string
}

func NewClassification(name, description string) (*Classification, error) {
	c := &Classification{}
	if err := c.SetName(name); err != nil {
		return nil, err
	}
	if err := c.SetDescription(description); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Classification) ID() int64           { return c.id }
func (c *Classification) Name() string        { return c.name }
func (c *Classification) Description() string { return c.description }

func (c *Classification) SetID(id int64) error {
	if err := checkID("classificationID", id); err != nil {
		return err
	}
	c.id = id
	return nil
}

func (c *Classification) SetName(name string) error {
	if err := checkText(ErrInvalidName, "classification", name, 1, limits.NameMax); err != nil {
		return err
	}
	c.name = strings.TrimSpace(name)
	return nil
}

func (c *Classification) SetDescription(description string) error {
	if err := checkText(ErrInvalidDescription, "description", description, 0, limits.DescriptionMax); err != nil {
		return err
	}
	c.description = description
	return nil
}

