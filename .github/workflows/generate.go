package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type PushTrigger struct {
	Branches []string `yaml:"branches,omitempty"`
	Tags     []string `yaml:"tags,omitempty"`
}

type Trigger struct {
	Push        PushTrigger `yaml:"push,omitempty"`
	PullRequest PushTrigger `yaml:"pull_request,omitempty"`
}

type Args map[string]interface{}

type Step struct {
	Name string `yaml:"name,omitempty"`
	If   string `yaml:"if,omitempty"`
	Uses string `yaml:"uses,omitempty"`
	ID   string `yaml:"id,omitempty"`
	Run  string `yaml:"run,omitempty"`
	With Args   `yaml:"with,omitempty"`

	Env map[string]string `yaml:"env,omitempty"`
}

type Strategy struct {
	Matrix map[string][]string `yaml:"matrix"`
}

type Job struct {
	RunsOn   string    `yaml:"runs-on"`
	If       string    `yaml:"if,omitempty"`
	Needs    []string  `yaml:"needs,omitempty"`
	Strategy *Strategy `yaml:"strategy,omitempty"`
	Steps    []Step    `yaml:"steps"`
}

type Workflow struct {
	Name string  `yaml:"name"`
	On   Trigger `yaml:"on,omitempty"`
	Jobs map[string]Job
}

// Target is a binary built for every listed platform on tagged pushes.
type Target struct {
	// The name of the binary and of its release artifact.
	Name string

	// The package path relative to the repo root.
	Package string

	// `GOOS/GOARCH` pairs.
	Platforms []string
}

const goVersion = "1.24"

var (
	stepCheckout = Step{Name: "Checkout", Uses: "actions/checkout@v4"}
	stepSetupGo  = Step{
		Name: "Set up Go",
		Uses: "actions/setup-go@v5",
		With: Args{"go-version": goVersion},
	}
)

func WorkflowCI(targets ...*Target) Workflow {
	jobs := map[string]Job{"test": JobTest()}
	for _, target := range targets {
		jobs[target.Name] = JobRelease(target)
	}
	return Workflow{
		Name: "ci",
		On: Trigger{
			Push: PushTrigger{
				Branches: []string{"*"},
				Tags:     []string{"*"},
			},
			PullRequest: PushTrigger{Branches: []string{"*"}},
		},
		Jobs: jobs,
	}
}

func JobTest() Job {
	return Job{
		RunsOn: "ubuntu-latest",
		Steps: []Step{
			stepCheckout,
			stepSetupGo,
			{Name: "Vet", Run: "go vet ./..."},
			{Name: "Test", Run: "go test -race ./..."},
		},
	}
}

func JobRelease(target *Target) Job {
	return Job{
		RunsOn:   "ubuntu-latest",
		If:       "startsWith(github.ref, 'refs/tags/')",
		Needs:    []string{"test"},
		Strategy: &Strategy{Matrix: map[string][]string{"platform": target.Platforms}},
		Steps: []Step{stepCheckout, stepSetupGo, {
			Name: "Build",
			Env:  map[string]string{"PLATFORM": "${{ matrix.platform }}"},
			Run: fmt.Sprintf(`export GOOS=${PLATFORM%%/*} GOARCH=${PLATFORM#*/}
mkdir -p dist
CGO_ENABLED=0 go build -trimpath -o "dist/%s-${GOOS}-${GOARCH}" ./%s`,
				target.Name,
				target.Package,
			),
		}, {
			Name: "Upload",
			Uses: "actions/upload-artifact@v4",
			With: Args{
				"name": target.Name + "-${{ strategy.job-index }}",
				"path": "dist/",
			},
		}},
	}
}

func MarshalToWriter(w io.Writer, v interface{}) error {
	yamlEncoder := yaml.NewEncoder(w)
	yamlEncoder.SetIndent(2)
	if err := yamlEncoder.Encode(v); err != nil {
		return fmt.Errorf("marshaling to YAML: %w", err)
	}
	return nil
}

func main() {
	if err := MarshalToWriter(
		os.Stdout,
		WorkflowCI(&Target{
			Name:      "efs",
			Package:   "cmd/efs",
			Platforms: []string{"linux/amd64", "linux/arm64", "darwin/arm64"},
		}),
	); err != nil {
		log.Fatalf("marshaling ci workflow: %v", err)
	}
}
