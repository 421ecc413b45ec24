// internal/contract/load_test.go
package contract

import (
	"strings"
	"testing"

	"contract-runtime/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	known map[string]bool
}

func (s stubResolver) Has(name string) bool { return s.known[name] }

func allKnown() stubResolver {
	return stubResolver{known: map[string]bool{
		"validateBirthDate": true,
		"validateEmail":     true,
		"uniqueName":        true,
	}}
}

const petContract = `
openapi: 3.0.3
info:
  title: petstore
  version: 1.2.0
paths:
  /pets:
    get:
      operationId: listPets
      x-runtime-filterable: [species, age]
      responses:
        "200":
          content:
            application/json:
              schema:
                type: array
                items:
                  $ref: "#/components/schemas/Pet"
    post:
      operationId: createPet
      requestBody:
        content:
          application/json:
            schema:
              $ref: "#/components/schemas/Pet"
      responses:
        "201":
          content:
            application/json:
              schema:
                $ref: "#/components/schemas/Pet"
  /pets/{petId}:
    get:
      operationId: getPet
      responses:
        "200":
          content:
            application/json:
              schema:
                $ref: "#/components/schemas/Pet"
    delete:
      operationId: deletePet
      responses:
        "204": {}
  /legacy-orders/{orderId}:
    get:
      operationId: getLegacyOrder
      x-runtime-proxy:
        url: http://legacy.internal/api/orders/{orderId}
        method: GET
        responseMapping:
          legacyId: id
          total: totalAmount
      responses:
        "200":
          content:
            application/json:
              schema:
                $ref: "#/components/schemas/Order"
components:
  schemas:
    Pet:
      type: object
      required: [name, species]
      x-runtime-soft-delete:
        property: petStatus
        value: inactive
      x-runtime-validators: [validateBirthDate]
      x-runtime-pagination:
        strategy: offset
        maxPageSize: 100
      properties:
        id:
          type: string
        name:
          type: string
        species:
          type: string
        age:
          type: integer
        birthDate:
          type: string
        petStatus:
          type: string
    Order:
      type: object
      properties:
        id:
          type: string
        totalAmount:
          type: number
`

func TestParseNormalizesContract(t *testing.T) {
	c, err := Parse([]byte(petContract), allKnown())
	require.NoError(t, err)

	assert.Equal(t, "petstore", c.ID)
	assert.Equal(t, "1.2.0", c.Version)
	assert.Len(t, c.Operations, 6)

	pet := c.Resources["Pet"]
	require.NotNil(t, pet)
	assert.Equal(t, "pets", pet.Collection)
	require.NotNil(t, pet.SoftDelete)
	assert.Equal(t, "petStatus", pet.SoftDelete.Property)
	assert.Equal(t, "inactive", pet.SoftDelete.Value)
	assert.Equal(t, []string{"validateBirthDate"}, pet.Validators)
	assert.Equal(t, PaginationOffset, pet.Pagination.Strategy)
	assert.Equal(t, 100, pet.Pagination.MaxPageSize)

	// property declaration order survives yaml decoding
	names := make([]string, 0, len(pet.Properties))
	for _, p := range pet.Properties {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"id", "name", "species", "age", "birthDate", "petStatus"}, names)
}

func TestParseBindsOperations(t *testing.T) {
	c, err := Parse([]byte(petContract), allKnown())
	require.NoError(t, err)

	op, params, ok := c.Resolve("POST", "/pets")
	require.True(t, ok)
	assert.Equal(t, "createPet", op.ID)
	assert.Equal(t, KindCreate, op.Kind)
	assert.Empty(t, params)
	require.NotNil(t, op.RequestSchema)
	_, hasExt := op.RequestSchema[ExtSoftDelete]
	assert.False(t, hasExt, "x- fields must not leak into the json schema")

	op, params, ok = c.Resolve("GET", "/pets/abc-123")
	require.True(t, ok)
	assert.Equal(t, "getPet", op.ID)
	assert.Equal(t, "abc-123", params["petId"])

	// DELETE has no schema reference and inherits the collection's resource
	op, _, ok = c.Resolve("DELETE", "/pets/abc-123")
	require.True(t, ok)
	require.NotNil(t, op.Resource)
	assert.Equal(t, "Pet", op.Resource.Name)
	require.NotNil(t, op.EffectiveSoftDelete())

	op, params, ok = c.Resolve("GET", "/legacy-orders/777")
	require.True(t, ok)
	require.NotNil(t, op.Proxy)
	assert.Equal(t, "http://legacy.internal/api/orders/{orderId}", op.Proxy.URL)
	assert.Equal(t, "id", op.Proxy.ResponseMapping["legacyId"])
	assert.Equal(t, "777", params["orderId"])

	_, _, ok = c.Resolve("PUT", "/pets/abc-123")
	assert.False(t, ok)
	_, _, ok = c.Resolve("GET", "/unknown")
	assert.False(t, ok)
}

func TestParseListOperation(t *testing.T) {
	c, err := Parse([]byte(petContract), allKnown())
	require.NoError(t, err)

	op, _, ok := c.Resolve("GET", "/pets")
	require.True(t, ok)
	assert.Equal(t, KindList, op.Kind)
	assert.Equal(t, []string{"species", "age"}, op.Filterable)
	require.NotNil(t, op.Resource)
	assert.Equal(t, "Pet", op.Resource.Name)
}

func TestParseFailures(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(doc string) string
		fragment string
	}{
		{
			name: "unknown validator",
			mutate: func(doc string) string {
				return replaceOnce(doc, "x-runtime-validators: [validateBirthDate]",
					"x-runtime-validators: [validateNoSuchThing]")
			},
			fragment: "unknown validator",
		},
		{
			name: "unresolvable ref",
			mutate: func(doc string) string {
				return replaceOnce(doc, `$ref: "#/components/schemas/Order"`,
					`$ref: "#/components/schemas/Missing"`)
			},
			fragment: "unresolvable reference",
		},
		{
			name: "soft-delete property missing from schema",
			mutate: func(doc string) string {
				return replaceOnce(doc, "property: petStatus", "property: noSuchField")
			},
			fragment: "does not exist",
		},
		{
			name: "proxy and soft-delete on one operation",
			mutate: func(doc string) string {
				return replaceOnce(doc, `      x-runtime-proxy:`,
					"      x-runtime-soft-delete: {property: id, value: gone}\n      x-runtime-proxy:")
			},
			fragment: "proxy and soft-delete",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.mutate(petContract)), allKnown())
			require.Error(t, err)
			rtErr := errors.Normalize(err)
			assert.Equal(t, errors.ErrCodeContractInvalid, rtErr.Code)
			assert.Contains(t, rtErr.Details, tt.fragment)
		})
	}
}

func TestParseRejectsDuplicateRoutes(t *testing.T) {
	doc := replaceOnce(petContract, "/pets/{petId}:", "/pets/{id}:\n    get:\n      operationId: getPetAlias\n      responses:\n        \"200\":\n          content:\n            application/json:\n              schema:\n                $ref: \"#/components/schemas/Pet\"\n  /pets/{petId}:")
	_, err := Parse([]byte(doc), allKnown())
	require.Error(t, err)
	assert.Contains(t, errors.Normalize(err).Details, "duplicate route")
}

func TestParseRejectsEmptyDocument(t *testing.T) {
	_, err := Parse([]byte("openapi: 3.0.3\ninfo:\n  title: empty\n  version: 0.0.1\npaths: {}\n"), allKnown())
	require.Error(t, err)
	assert.Contains(t, errors.Normalize(err).Details, "no operations")
}

func TestParseRejectsMalformedYaml(t *testing.T) {
	_, err := Parse([]byte("::not yaml::\n\t"), allKnown())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeContractInvalid, errors.Normalize(err).Code)
}

func replaceOnce(doc, old, new string) string {
	return strings.Replace(doc, old, new, 1)
}
