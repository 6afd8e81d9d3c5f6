package validation

import (
	"testing"

	"firestore-odm/internal/odm/metadata"
	"firestore-odm/internal/odm/store"
	"firestore-odm/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type band struct {
	ID   string `bson:"-"`
	Name string `bson:"name"`
	Year int    `bson:"year"`
}

func (b *band) GetID() string   { return b.ID }
func (b *band) SetID(id string) { b.ID = id }

func newBandType(opts ...metadata.EntityTypeOption) *metadata.EntityType {
	return metadata.NewEntityType[band]("Band", opts...)
}

func validationErrors(t *testing.T, err error) []errors.ValidationError {
	t.Helper()
	var verrs *errors.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	return verrs.Errors
}

func TestCELValidator_Passes(t *testing.T) {
	v, err := NewCELValidator(metadata.ValidatorOptions{}, nil)
	require.NoError(t, err)

	bandType := newBandType(
		metadata.WithRule("name", "self.name != ''", "name is required"),
		metadata.WithRule("year", "self.year >= 1900", ""),
	)

	assert.NoError(t, v.Validate(bandType, store.Document{"name": "Queen", "year": int32(1970)}))
}

func TestCELValidator_CollectsAllFailures(t *testing.T) {
	v, err := NewCELValidator(metadata.ValidatorOptions{}, nil)
	require.NoError(t, err)

	bandType := newBandType(
		metadata.WithRule("name", "self.name != ''", "name is required"),
		metadata.WithRule("year", "self.year >= 1900", ""),
	)

	err = v.Validate(bandType, store.Document{"name": "", "year": int32(12)})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrModelValidation)
	assert.True(t, errors.IsValidation(err))

	fails := validationErrors(t, err)
	require.Len(t, fails, 2)
	assert.Equal(t, "name", fails[0].Field)
	assert.Equal(t, "name is required", fails[0].Message)
	assert.Equal(t, "year", fails[1].Field)
	assert.Contains(t, fails[1].Message, "self.year >= 1900")
}

func TestCELValidator_StopAtFirstError(t *testing.T) {
	v, err := NewCELValidator(metadata.ValidatorOptions{StopAtFirstError: true}, nil)
	require.NoError(t, err)

	bandType := newBandType(
		metadata.WithRule("name", "self.name != ''", "name is required"),
		metadata.WithRule("year", "self.year >= 1900", "too old"),
	)

	err = v.Validate(bandType, store.Document{"name": "", "year": int32(12)})
	assert.Len(t, validationErrors(t, err), 1)
}

func TestCELValidator_MissingFieldFails(t *testing.T) {
	v, err := NewCELValidator(metadata.ValidatorOptions{}, nil)
	require.NoError(t, err)

	bandType := newBandType(metadata.WithRule("name", "self.name != ''", ""))
	err = v.Validate(bandType, store.Document{})
	assert.ErrorIs(t, err, errors.ErrModelValidation)
}

func TestCELValidator_NestedAndListFields(t *testing.T) {
	v, err := NewCELValidator(metadata.ValidatorOptions{}, nil)
	require.NoError(t, err)

	bandType := newBandType(
		metadata.WithRule("label", "self.label.name.startsWith('E')", ""),
		metadata.WithRule("genres", "size(self.genres) > 0", ""),
	)

	doc := store.Document{
		"label":  map[string]interface{}{"name": "EMI"},
		"genres": []interface{}{"rock"},
	}
	assert.NoError(t, v.Validate(bandType, doc))
}

func TestCELValidator_InvalidExpression(t *testing.T) {
	v, err := NewCELValidator(metadata.ValidatorOptions{}, nil)
	require.NoError(t, err)

	broken := newBandType(metadata.WithRule("name", "self.name !=", ""))
	assert.Error(t, v.Compile(broken))
	assert.ErrorIs(t, v.Validate(broken, store.Document{"name": "x"}), errors.ErrInvalidInputValue)

	notBool := newBandType(metadata.WithRule("name", "'x' + 'y'", ""))
	assert.Error(t, v.Compile(notBool))
}

func TestCELValidator_NoRules(t *testing.T) {
	v, err := NewCELValidator(metadata.ValidatorOptions{}, nil)
	require.NoError(t, err)
	assert.NoError(t, v.Validate(newBandType(), nil))
}
