package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asccclass/skillbridge/internal/invoker"
	"github.com/asccclass/skillbridge/internal/kvstore"
	"github.com/asccclass/skillbridge/internal/skillloader"
	"github.com/asccclass/skillbridge/internal/skillstore"
)

type recordingExecutor struct {
	calls []string
	keys  []string
}

func (e *recordingExecutor) Execute(_ context.Context, skill *skillloader.Skill, _ map[string]any, apiKey string) invoker.Result {
	e.calls = append(e.calls, skill.BaseURL+skill.Path)
	e.keys = append(e.keys, apiKey)
	return invoker.Result{Success: true, Result: skill.Name}
}

func skill(name, base string) skillloader.Skill {
	return skillloader.Skill{Name: name, Description: name + " desc", Method: "GET", Path: "/" + name, BaseURL: base}
}

func TestRegistryOrderAndShadowing(t *testing.T) {
	exec := &recordingExecutor{}
	reg := NewRegistry()
	reg.Register(NewSkillTool("first", skill("search", "https://a.example"), exec, nil))
	reg.Register(NewSkillTool("first", skill("lookup", "https://a.example"), exec, nil))
	reg.Register(NewSkillTool("second", skill("search", "https://b.example"), exec, nil))

	assert.Equal(t, 2, reg.Len())
	defs := reg.GetDefinitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "search", defs[0].Function.Name)
	assert.Equal(t, "lookup", defs[1].Function.Name)

	tool, ok := reg.Lookup("search")
	require.True(t, ok)
	assert.Equal(t, "second", tool.Source())
	res := tool.Run(context.Background(), nil)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"https://b.example/search"}, exec.calls)
}

func TestLookupUnknown(t *testing.T) {
	_, ok := NewRegistry().Lookup("nope")
	assert.False(t, ok)
}

func TestGetToolPromptTruncates(t *testing.T) {
	reg := NewRegistry()
	for _, n := range []string{"a", "b", "c"} {
		reg.Register(NewSkillTool("demo", skill(n, "https://x"), &recordingExecutor{}, nil))
	}
	prompt := reg.GetToolPrompt(2)
	assert.Contains(t, prompt, "- a: a desc [demo]")
	assert.Contains(t, prompt, "- b: b desc [demo]")
	assert.NotContains(t, prompt, "- c:")
	assert.Contains(t, prompt, "... and 1 more")
}

func TestBuildRegistryDecryptsKeyPerCall(t *testing.T) {
	ctx := context.Background()
	store := skillstore.New(kvstore.NewMemory(), nil)
	_, err := store.Register(ctx, "u1", "crm", &skillloader.Compiled{
		BaseURL: "https://crm.example",
		Skills:  []skillloader.Skill{skill("contacts", "https://crm.example")},
	}, "secret-key")
	require.NoError(t, err)

	set, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	exec := &recordingExecutor{}
	reg := BuildRegistry(set, store, exec)

	tool, ok := reg.Lookup("contacts")
	require.True(t, ok)
	res := tool.Run(ctx, map[string]any{})
	assert.True(t, res.Success)
	assert.Equal(t, []string{"secret-key"}, exec.keys)
}

func TestSkillToolDecryptFailure(t *testing.T) {
	tool := NewSkillTool("crm", skill("x", "https://x"), &recordingExecutor{}, func() (string, error) {
		return "", assert.AnError
	})
	res := tool.Run(context.Background(), nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "decrypt api key")
}
