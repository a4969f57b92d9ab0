package launch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// Detector inspects a checkout and returns a launch script body when it
// recognizes the project. Detectors only read from fsys.
type Detector func(fsys fs.FS) (string, bool)

// Detectors is the ordered chain Detect tries; the first match wins.
var Detectors = []Detector{
	detectCompose,
	detectNode,
	detectPython,
	detectGo,
	detectDotnet,
	detectShellLauncher,
	fallbackScaffold,
}

// Detect runs the detector chain against fsys. The final scaffold always
// matches, so the result is never empty.
func Detect(fsys fs.FS) string {
	for _, detect := range Detectors {
		if script, ok := detect(fsys); ok {
			return script
		}
	}
	return ""
}

func exists(fsys fs.FS, name string) bool {
	_, err := fs.Stat(fsys, name)
	return err == nil
}

func lines(l ...string) string {
	return strings.Join(l, "\n") + "\n"
}

func detectCompose(fsys fs.FS) (string, bool) {
	for _, name := range []string{"docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml"} {
		if exists(fsys, name) {
			return lines(
				"# Launch using Docker Compose",
				fmt.Sprintf("docker compose -f %s pull", name),
				fmt.Sprintf("docker compose -f %s up --build -d", name),
			), true
		}
	}
	return "", false
}

func detectNode(fsys fs.FS) (string, bool) {
	data, err := fs.ReadFile(fsys, "package.json")
	if err != nil {
		return "", false
	}

	var pkg struct {
		Scripts map[string]any `json:"scripts"`
	}
	// A malformed package.json still gets the default start command.
	_ = json.Unmarshal(data, &pkg)

	script := ""
	for _, key := range []string{"start", "dev", "serve"} {
		if _, ok := pkg.Scripts[key].(string); ok {
			script = key
			break
		}
	}

	var install, start string
	switch {
	case exists(fsys, "yarn.lock"):
		install, start = "yarn install", "yarn start"
		if script != "" {
			start = "yarn " + script
		}
	case exists(fsys, "pnpm-lock.yaml"):
		install, start = "pnpm install --frozen-lockfile", "pnpm start"
		if script != "" {
			start = "pnpm " + script
		}
	default:
		install, start = "npm install", "npm start"
		if exists(fsys, "package-lock.json") {
			install = "npm ci"
		}
		if script != "" {
			start = "npm run " + script
		}
	}

	return lines("# Install dependencies and start Node.js service", install, start), true
}

func detectPython(fsys fs.FS) (string, bool) {
	hasRequirements := exists(fsys, "requirements.txt")
	hasPyproject := exists(fsys, "pyproject.toml")
	if !hasRequirements && !hasPyproject {
		return "", false
	}

	cmds := []string{
		"# Bootstrap Python application",
		"python -m venv .venv",
		"source .venv/bin/activate",
	}
	if hasRequirements {
		cmds = append(cmds, "pip install -r requirements.txt")
	}
	if hasPyproject {
		cmds = append(cmds, "pip install .")
	}

	run := "python -m app"
	for _, entry := range []string{"manage.py", "app.py", "main.py"} {
		if !exists(fsys, entry) {
			continue
		}
		if entry == "manage.py" {
			run = "python manage.py migrate && python manage.py runserver 0.0.0.0:8000"
		} else {
			run = "python " + entry
		}
		break
	}
	return lines(append(cmds, run)...), true
}

func detectGo(fsys fs.FS) (string, bool) {
	if !exists(fsys, "go.mod") {
		return "", false
	}
	return lines(
		"# Build and run Go service",
		"go mod tidy",
		"go build -o bin/app ./...",
		"./bin/app",
	), true
}

var errFound = errors.New("found")

func detectDotnet(fsys fs.FS) (string, bool) {
	if slns, _ := fs.Glob(fsys, "*.sln"); len(slns) > 0 {
		return dotnetScript, true
	}
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && (d.Name() == ".git" || d.Name() == "node_modules") {
			return fs.SkipDir
		}
		if !d.IsDir() && path.Ext(p) == ".csproj" {
			return errFound
		}
		return nil
	})
	if errors.Is(err, errFound) {
		return dotnetScript, true
	}
	return "", false
}

var dotnetScript = lines(
	"# Run .NET application",
	"dotnet restore",
	"dotnet build",
	"dotnet run",
)

func detectShellLauncher(fsys fs.FS) (string, bool) {
	for _, name := range []string{"run.sh", "start.sh", "scripts/start.sh"} {
		if exists(fsys, name) {
			return lines(
				"# Use provided launch script",
				"chmod +x "+name,
				"./"+name,
			), true
		}
	}
	return "", false
}

func fallbackScaffold(fs.FS) (string, bool) {
	return lines(
		"# Fallback launch - customize as needed",
		"# Install dependencies here",
		"# Start the application here",
		`echo "Please provide a launch script or specify container strategy"`,
	), true
}
