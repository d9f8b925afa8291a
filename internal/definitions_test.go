package internal

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfacet/facet"
)

type fakeAttrStore struct {
	attrs map[string]*facet.Attribute
}

func newFakeAttrStore() *fakeAttrStore {
	return &fakeAttrStore{attrs: map[string]*facet.Attribute{}}
}

func (s *fakeAttrStore) Create(ctx context.Context, in facet.CreateAttribute) (*facet.Attribute, error) {
	slug := in.Slug
	if slug == "" {
		slug = facet.Slugify(in.Name)
	}
	if _, ok := s.attrs[slug]; ok {
		return nil, facet.NewConflictError(fmt.Sprintf("attribute with slug %q already exists", slug))
	}
	attr := &facet.Attribute{
		ID:          uuid.Must(uuid.NewV7()),
		Name:        in.Name,
		Slug:        slug,
		Description: in.Description,
		Datatype:    in.Datatype,
		EnumGroupID: in.EnumGroupID,
		Required:    in.Required,
		Unique:      in.Unique,
	}
	s.attrs[slug] = attr
	return attr, nil
}

func (s *fakeAttrStore) GetBySlug(ctx context.Context, slug string) (*facet.Attribute, error) {
	attr, ok := s.attrs[slug]
	if !ok {
		return nil, facet.NewNotFoundError(fmt.Sprintf("attribute %q not found", slug))
	}
	return attr, nil
}

func (s *fakeAttrStore) List(ctx context.Context) ([]*facet.Attribute, error) {
	slugs := make([]string, 0, len(s.attrs))
	for slug := range s.attrs {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	attrs := make([]*facet.Attribute, 0, len(slugs))
	for _, slug := range slugs {
		attrs = append(attrs, s.attrs[slug])
	}
	return attrs, nil
}

func (s *fakeAttrStore) Delete(ctx context.Context, slug string) error {
	if _, ok := s.attrs[slug]; !ok {
		return facet.NewNotFoundError(fmt.Sprintf("attribute %q not found", slug))
	}
	delete(s.attrs, slug)
	return nil
}

type fakeEnumCatalog struct {
	values  map[string]uuid.UUID
	groups  map[string]*facet.EnumGroup
	members map[uuid.UUID]map[uuid.UUID]string
}

func newFakeEnumCatalog() *fakeEnumCatalog {
	return &fakeEnumCatalog{
		values:  map[string]uuid.UUID{},
		groups:  map[string]*facet.EnumGroup{},
		members: map[uuid.UUID]map[uuid.UUID]string{},
	}
}

func (s *fakeEnumCatalog) GetOrCreateValue(ctx context.Context, label string) (*facet.EnumValue, error) {
	id, ok := s.values[label]
	if !ok {
		id = uuid.Must(uuid.NewV7())
		s.values[label] = id
	}
	return &facet.EnumValue{ID: id, Value: label}, nil
}

func (s *fakeEnumCatalog) CreateGroup(ctx context.Context, name string) (*facet.EnumGroup, error) {
	if _, ok := s.groups[name]; ok {
		return nil, facet.NewConflictError(fmt.Sprintf("enum group %q already exists", name))
	}
	group := &facet.EnumGroup{ID: uuid.Must(uuid.NewV7()), Name: name}
	s.groups[name] = group
	s.members[group.ID] = map[uuid.UUID]string{}
	return group, nil
}

func (s *fakeEnumCatalog) GetGroup(ctx context.Context, name string) (*facet.EnumGroup, error) {
	group, ok := s.groups[name]
	if !ok {
		return nil, facet.NewNotFoundError(fmt.Sprintf("enum group %q not found", name))
	}
	values, err := s.GroupChoices(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	return &facet.EnumGroup{ID: group.ID, Name: group.Name, Values: values}, nil
}

func (s *fakeEnumCatalog) AddGroupValues(ctx context.Context, groupID uuid.UUID, labels ...string) error {
	for _, label := range labels {
		value, err := s.GetOrCreateValue(ctx, label)
		if err != nil {
			return err
		}
		s.members[groupID][value.ID] = label
	}
	return nil
}

func (s *fakeEnumCatalog) RemoveGroupValue(ctx context.Context, groupID uuid.UUID, label string) error {
	for id, member := range s.members[groupID] {
		if member == label {
			delete(s.members[groupID], id)
			return nil
		}
	}
	return facet.NewNotFoundError(fmt.Sprintf("value %q is not a member of the group", label))
}

func (s *fakeEnumCatalog) GroupChoices(ctx context.Context, groupID uuid.UUID) ([]facet.EnumValue, error) {
	var values []facet.EnumValue
	for id, label := range s.members[groupID] {
		values = append(values, facet.EnumValue{ID: id, Value: label})
	}
	sort.Slice(values, func(i, j int) bool { return values[i].Value < values[j].Value })
	return values, nil
}

func (s *fakeEnumCatalog) GroupContains(ctx context.Context, groupID, valueID uuid.UUID) (bool, error) {
	_, ok := s.members[groupID][valueID]
	return ok, nil
}

type fakeEngine struct {
	attrs *fakeAttrStore
	enums *fakeEnumCatalog
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{attrs: newFakeAttrStore(), enums: newFakeEnumCatalog()}
}

func (e *fakeEngine) Attributes() facet.AttributeStore { return e.attrs }
func (e *fakeEngine) Enums() facet.EnumStore           { return e.enums }
func (e *fakeEngine) Values() facet.ValueStore         { return nil }

func (e *fakeEngine) Bind(ref facet.EntityRef, attrs []*facet.Attribute) *facet.Entity {
	return facet.BindEntity(nil, e.enums, ref, attrs)
}

func (e *fakeEngine) BindSlugs(ctx context.Context, ref facet.EntityRef, slugs ...string) (*facet.Entity, error) {
	attrs := make([]*facet.Attribute, 0, len(slugs))
	for _, slug := range slugs {
		attr, err := e.attrs.GetBySlug(ctx, slug)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return e.Bind(ref, attrs), nil
}

const sampleDefinitionYAML = `
version: 1
enum_groups:
  - name: yes_no
    values: ["No", "Yes"]
attributes:
  - name: Has Fever
    datatype: enum
    enum_group: yes_no
    required: true
  - name: Age
    datatype: float
  - name: Taxpayer ID
    slug: taxpayer_id
    datatype: text
    unique: true
`

func TestParseDefinitionYAML(t *testing.T) {
	doc, err := ParseDefinition([]byte(sampleDefinitionYAML))
	require.NoError(t, err)

	assert.Equal(t, 1, doc.Version)
	require.Len(t, doc.EnumGroups, 1)
	assert.Equal(t, "yes_no", doc.EnumGroups[0].Name)
	assert.Equal(t, []string{"No", "Yes"}, doc.EnumGroups[0].Values)

	require.Len(t, doc.Attributes, 3)
	assert.Equal(t, "Has Fever", doc.Attributes[0].Name)
	assert.Equal(t, "enum", doc.Attributes[0].Datatype)
	assert.True(t, doc.Attributes[0].Required)
	assert.Equal(t, "taxpayer_id", doc.Attributes[2].Slug)
	assert.True(t, doc.Attributes[2].Unique)
}

func TestParseDefinitionJSON(t *testing.T) {
	doc, err := ParseDefinition([]byte(`{"attributes":[{"name":"Age","datatype":"float"}]}`))
	require.NoError(t, err)
	require.Len(t, doc.Attributes, 1)
	assert.Equal(t, "float", doc.Attributes[0].Datatype)
}

func TestParseDefinitionRejects(t *testing.T) {
	cases := map[string]string{
		"not yaml":             "a: [unclosed",
		"missing attributes":   `{"version": 1}`,
		"empty attributes":     `{"attributes": []}`,
		"unknown datatype":     `{"attributes":[{"name":"Age","datatype":"decimal"}]}`,
		"unknown top-level":    `{"attributes":[{"name":"Age","datatype":"float"}],"extra":true}`,
		"uppercase slug":       `{"attributes":[{"name":"Age","slug":"Age","datatype":"float"}]}`,
		"group without values": `{"enum_groups":[{"name":"yes_no"}],"attributes":[{"name":"Age","datatype":"float"}]}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDefinition([]byte(input))
			assert.True(t, facet.IsConfigurationError(err), "got %v", err)
		})
	}
}

func TestParseDefinitionSemantics(t *testing.T) {
	cases := map[string]string{
		"duplicate group": `{
			"enum_groups": [{"name":"g","values":["a"]},{"name":"g","values":["b"]}],
			"attributes": [{"name":"Age","datatype":"float"}]}`,
		"duplicate derived slug": `{
			"attributes": [{"name":"Patient Age","datatype":"float"},{"name":"patient age","datatype":"text"}]}`,
		"enum without group": `{
			"attributes": [{"name":"Status","datatype":"enum"}]}`,
		"group on non-enum": `{
			"enum_groups": [{"name":"g","values":["a"]}],
			"attributes": [{"name":"Age","datatype":"float","enum_group":"g"}]}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDefinition([]byte(input))
			assert.True(t, facet.IsConfigurationError(err), "got %v", err)
		})
	}
}

func TestApplyDefinitions(t *testing.T) {
	ctx := context.Background()
	eng := newFakeEngine()

	doc, err := ParseDefinition([]byte(sampleDefinitionYAML))
	require.NoError(t, err)

	result, err := ApplyDefinitions(ctx, eng, doc)
	require.NoError(t, err)
	assert.Equal(t, 1, result.GroupsCreated)
	assert.Equal(t, 3, result.AttributesCreated)
	assert.Empty(t, result.AttributesSkipped)

	group, err := eng.Enums().GetGroup(ctx, "yes_no")
	require.NoError(t, err)
	require.Len(t, group.Values, 2)

	fever, err := eng.Attributes().GetBySlug(ctx, "has_fever")
	require.NoError(t, err)
	require.NotNil(t, fever.EnumGroupID)
	assert.Equal(t, group.ID, *fever.EnumGroupID)
	assert.True(t, fever.Required)

	tax, err := eng.Attributes().GetBySlug(ctx, "taxpayer_id")
	require.NoError(t, err)
	assert.True(t, tax.Unique)
}

func TestApplyDefinitionsIdempotent(t *testing.T) {
	ctx := context.Background()
	eng := newFakeEngine()

	doc, err := ParseDefinition([]byte(sampleDefinitionYAML))
	require.NoError(t, err)

	_, err = ApplyDefinitions(ctx, eng, doc)
	require.NoError(t, err)

	result, err := ApplyDefinitions(ctx, eng, doc)
	require.NoError(t, err)
	assert.Zero(t, result.GroupsCreated)
	assert.Zero(t, result.AttributesCreated)
	assert.ElementsMatch(t, []string{"has_fever", "age", "taxpayer_id"}, result.AttributesSkipped)
}

func TestApplyDefinitionsUnionsNewLabels(t *testing.T) {
	ctx := context.Background()
	eng := newFakeEngine()

	doc, err := ParseDefinition([]byte(sampleDefinitionYAML))
	require.NoError(t, err)
	_, err = ApplyDefinitions(ctx, eng, doc)
	require.NoError(t, err)

	grown, err := ParseDefinition([]byte(`{
		"enum_groups": [{"name":"yes_no","values":["No","Yes","Unknown"]}],
		"attributes": [{"name":"Has Fever","datatype":"enum","enum_group":"yes_no","required":true}]}`))
	require.NoError(t, err)
	_, err = ApplyDefinitions(ctx, eng, grown)
	require.NoError(t, err)

	group, err := eng.Enums().GetGroup(ctx, "yes_no")
	require.NoError(t, err)
	require.Len(t, group.Values, 3)
	assert.True(t, group.Contains("Unknown"))
}

func TestApplyDefinitionsDatatypeConflict(t *testing.T) {
	ctx := context.Background()
	eng := newFakeEngine()

	_, err := eng.Attributes().Create(ctx, facet.CreateAttribute{Name: "Age", Datatype: facet.DatatypeText})
	require.NoError(t, err)

	doc, err := ParseDefinition([]byte(`{"attributes":[{"name":"Age","datatype":"float"}]}`))
	require.NoError(t, err)

	_, err = ApplyDefinitions(ctx, eng, doc)
	require.True(t, facet.IsConflictError(err))
	assert.Contains(t, err.Error(), "already defined with datatype text")
}

func TestApplyDefinitionsEnumGroupConflict(t *testing.T) {
	ctx := context.Background()
	eng := newFakeEngine()

	other, err := eng.Enums().CreateGroup(ctx, "other")
	require.NoError(t, err)
	_, err = eng.Attributes().Create(ctx, facet.CreateAttribute{
		Name: "Has Fever", Datatype: facet.DatatypeEnum, EnumGroupID: &other.ID,
	})
	require.NoError(t, err)

	doc, err := ParseDefinition([]byte(`{
		"enum_groups": [{"name":"yes_no","values":["No","Yes"]}],
		"attributes": [{"name":"Has Fever","datatype":"enum","enum_group":"yes_no"}]}`))
	require.NoError(t, err)

	_, err = ApplyDefinitions(ctx, eng, doc)
	require.True(t, facet.IsConflictError(err))
	assert.Contains(t, err.Error(), "different enum group")
}

func TestApplyDefinitionsMissingGroupReference(t *testing.T) {
	ctx := context.Background()
	eng := newFakeEngine()

	doc, err := ParseDefinition([]byte(`{
		"attributes": [{"name":"Status","datatype":"enum","enum_group":"never_declared"}]}`))
	require.NoError(t, err)

	_, err = ApplyDefinitions(ctx, eng, doc)
	require.True(t, facet.IsNotFoundError(err))
}
