package launch

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
)

func file(content string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(content)}
}

func TestDetectOrder(t *testing.T) {
	tests := []struct {
		name     string
		files    fstest.MapFS
		contains []string
	}{
		{
			name: "compose wins over everything",
			files: fstest.MapFS{
				"compose.yaml": file("services: {}"),
				"package.json": file(`{}`),
				"go.mod":       file("module x"),
			},
			contains: []string{"docker compose -f compose.yaml pull", "docker compose -f compose.yaml up --build -d"},
		},
		{
			name: "node with npm lockfile and start script",
			files: fstest.MapFS{
				"package.json":      file(`{"scripts":{"dev":"vite","start":"node server.js"}}`),
				"package-lock.json": file("{}"),
			},
			contains: []string{"npm ci", "npm run start"},
		},
		{
			name: "node with yarn falls back to dev script",
			files: fstest.MapFS{
				"package.json": file(`{"scripts":{"dev":"next dev"}}`),
				"yarn.lock":    file(""),
			},
			contains: []string{"yarn install", "yarn dev"},
		},
		{
			name: "node with pnpm and no scripts",
			files: fstest.MapFS{
				"package.json":   file(`not json`),
				"pnpm-lock.yaml": file(""),
			},
			contains: []string{"pnpm install --frozen-lockfile", "pnpm start"},
		},
		{
			name: "django",
			files: fstest.MapFS{
				"requirements.txt": file("django"),
				"manage.py":        file(""),
			},
			contains: []string{"python -m venv .venv", "pip install -r requirements.txt", "python manage.py runserver 0.0.0.0:8000"},
		},
		{
			name: "pyproject with main.py",
			files: fstest.MapFS{
				"pyproject.toml": file(""),
				"main.py":        file(""),
			},
			contains: []string{"pip install .", "python main.py"},
		},
		{
			name:     "go module",
			files:    fstest.MapFS{"go.mod": file("module example.com/x")},
			contains: []string{"go mod tidy", "go build -o bin/app ./...", "./bin/app"},
		},
		{
			name:     "nested csproj",
			files:    fstest.MapFS{"src/Api/Api.csproj": file("<Project/>")},
			contains: []string{"dotnet restore", "dotnet run"},
		},
		{
			name:     "solution file",
			files:    fstest.MapFS{"App.sln": file("")},
			contains: []string{"dotnet build"},
		},
		{
			name:     "shell launcher",
			files:    fstest.MapFS{"scripts/start.sh": file("#!/bin/sh")},
			contains: []string{"chmod +x scripts/start.sh", "./scripts/start.sh"},
		},
		{
			name:     "fallback scaffold",
			files:    fstest.MapFS{"README.md": file("hello")},
			contains: []string{"Fallback launch", "Please provide a launch script"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := Detect(tt.files)
			for _, want := range tt.contains {
				assert.Contains(t, script, want)
			}
		})
	}
}

func TestGoIsNotShadowedByPython(t *testing.T) {
	script := Detect(fstest.MapFS{"go.mod": file("module x"), "run.sh": file("")})
	assert.Contains(t, script, "go build")
	assert.NotContains(t, script, "pip")
}

func TestDetectorsAreIndividuallyNegative(t *testing.T) {
	empty := fstest.MapFS{}
	for i, detect := range Detectors[:len(Detectors)-1] {
		_, ok := detect(empty)
		assert.False(t, ok, "detector %d matched an empty checkout", i)
	}
}
