package digest

import "testing"

import "github.com/stretchr/testify/assert"

func TestRowDeterministic(t *testing.T) {
	header := []string{"id", "name", "email"}
	a := Row(header, []string{"1", "ann", "ann@example.com"})
	b := Row(header, []string{"1", "ann", "ann@example.com"})
	assert.Equal(t, a, b)
	assert.Len(t, a, 40)
}

func TestRowPadsShort(t *testing.T) {
	header := []string{"id", "name", "email"}
	withBlank := Row(header, []string{"1", "ann", ""})
	short := Row(header, []string{"1", "ann"})
	assert.Equal(t, withBlank, short)
}

func TestRowOrderSensitive(t *testing.T) {
	header := []string{"id", "name"}
	a := Row(header, []string{"1", "ann"})
	b := Row(header, []string{"ann", "1"})
	assert.NotEqual(t, a, b)
}

func TestSchemaSignatureOrderIndependent(t *testing.T) {
	a := SchemaSignature([]FieldSpec{
		{Name: "id", Type: "int", Required: true},
		{Name: "name", Type: "string"},
	})
	b := SchemaSignature([]FieldSpec{
		{Name: "name", Type: "string"},
		{Name: "id", Type: "int", Required: true},
	})
	assert.Equal(t, a, b)
}

func TestSchemaSignatureChangesWithField(t *testing.T) {
	a := SchemaSignature([]FieldSpec{{Name: "id", Type: "int"}})
	b := SchemaSignature([]FieldSpec{{Name: "id", Type: "int"}, {Name: "name", Type: "string"}})
	assert.NotEqual(t, a, b)
}

func TestDocumentIDOrderIndependent(t *testing.T) {
	a := DocumentID("Table", map[string]any{"name": "users", "rows": 3})
	b := DocumentID("Table", map[string]any{"rows": 3, "name": "users"})
	assert.Equal(t, a, b)
	assert.Regexp(t, `^Table:[0-9a-f]{40}$`, a)
}
