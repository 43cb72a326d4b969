package skillloader

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type toolJSON struct {
	Type     string `json:"type"`
	Function struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Parameters  struct {
			Type       string `json:"type"`
			Required   []string
			Properties map[string]struct {
				Description string `json:"description"`
			} `json:"properties"`
		} `json:"parameters"`
	} `json:"function"`
}

func toolsAsJSON(t *testing.T, skills []Skill) []toolJSON {
	t.Helper()
	data, err := json.Marshal(SkillsToToolSchemas(skills))
	require.NoError(t, err)
	var out []toolJSON
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestSkillsToToolSchemas(t *testing.T) {
	skills := []Skill{
		{
			Name:        "getForecast",
			Description: "Get forecast",
			Method:      "GET",
			Path:        "/forecast/{city}",
			Parameters: []Parameter{
				{Name: "city", In: InPath, Required: true, Type: "string", Description: "City name"},
				{Name: "days", In: InQuery, Type: "integer"},
			},
		},
		{
			Name:        "createPet",
			Description: "Create a pet",
			Method:      "POST",
			Path:        "/pets",
			Parameters:  []Parameter{{Name: "X-Req", In: InHeader, Required: true, Type: "string"}},
			RequestBody: &RequestBody{Required: true, ContentType: "application/json"},
		},
		{
			Name:        "patchPet",
			Description: "Patch",
			Method:      "PATCH",
			Path:        "/pets",
			RequestBody: &RequestBody{Required: false},
		},
	}

	tools := toolsAsJSON(t, skills)
	require.Len(t, tools, 3)

	forecast := tools[0]
	assert.Equal(t, "function", forecast.Type)
	assert.Equal(t, "getForecast", forecast.Function.Name)
	assert.Equal(t, "Get forecast (GET /forecast/{city})", forecast.Function.Description)
	assert.Equal(t, "object", forecast.Function.Parameters.Type)
	assert.Equal(t, []string{"city"}, forecast.Function.Parameters.Required)
	assert.Equal(t, "City name", forecast.Function.Parameters.Properties["city"].Description)
	assert.Equal(t, "days parameter", forecast.Function.Parameters.Properties["days"].Description)

	create := tools[1]
	assert.Equal(t, []string{"X-Req", "body"}, create.Function.Parameters.Required)
	assert.Equal(t, "Request body data", create.Function.Parameters.Properties["body"].Description)

	patch := tools[2]
	assert.Empty(t, patch.Function.Parameters.Required)
	assert.NotContains(t, patch.Function.Parameters.Properties, "body")
}

func TestSkillsToToolSchemasEmpty(t *testing.T) {
	assert.Empty(t, SkillsToToolSchemas(nil))
}
