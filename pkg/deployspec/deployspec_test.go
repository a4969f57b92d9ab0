package deployspec

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseImageYAML(t *testing.T) {
	doc := `
type: image
image: nginx
tag: "1.25"
ports:
  - container_port: 80
    host_port: 8080
environment:
  MODE: prod
restart_policy: unless-stopped
`
	spec, raw, err := Parse([]byte(doc))
	require.NoError(t, err)

	image, ok := spec.(models.ImageSpec)
	require.True(t, ok)
	assert.Equal(t, "nginx:1.25", image.ImageRef())
	require.Len(t, image.Ports, 1)
	assert.Equal(t, 80, image.Ports[0].ContainerPort)
	assert.Contains(t, string(raw), `"type":"image"`)
}

func TestParseRepoJSON(t *testing.T) {
	spec, _, err := Parse([]byte(`{"type":"repo","repository":"org/app","use_ai_launch":false}`))
	require.NoError(t, err)

	repo, ok := spec.(models.RepoSpec)
	require.True(t, ok)
	assert.False(t, repo.AllowsInference())
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	tests := map[string]string{
		"missing type":    `{"image":"nginx"}`,
		"unknown type":    `{"type":"helm","chart":"x"}`,
		"image unset":     `{"type":"image"}`,
		"bad port":        `{"type":"image","image":"nginx","ports":[{"container_port":70000}]}`,
		"unknown field":   `{"type":"repo","repository":"org/app","replicas":3}`,
		"mixed variants":  `{"type":"repo","repository":"org/app","image":"nginx"}`,
		"not yaml":        "type: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spec.yaml")
	require.NoError(t, os.WriteFile(path, []byte("type: repo\nrepository: org/app\nref: v1\n"), 0644))

	spec, _, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, models.SpecRepo, spec.Kind())

	_, _, err = ParseFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWithKind(t *testing.T) {
	raw, err := WithKind(models.SpecImage, json.RawMessage(`{"image":"redis"}`))
	require.NoError(t, err)
	assert.NoError(t, Validate(mustDecode(t, raw)))

	_, err = WithKind(models.SpecImage, json.RawMessage(`[1]`))
	assert.Error(t, err)
}

func mustDecode(t *testing.T, raw []byte) any {
	var v any
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}
