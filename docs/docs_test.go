package docs_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swaggo/swag"

	"github.com/jhoicas/pdv-fiscal/docs"
)

func TestSwagger_DocumentoValido(t *testing.T) {
	raw, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
	require.NoError(t, err)

	var spec struct {
		Info  struct{ Title string } `json:"info"`
		Paths map[string]any         `json:"paths"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &spec))
	assert.Equal(t, "PDV Fiscal API", spec.Info.Title)
	assert.Contains(t, spec.Paths, "/api/fiscal/emit-document")
	assert.Contains(t, spec.Paths, "/api/fiscal/contingency/retransmit")
}
