// Command archguard checks that module layers only import inward: domain, then services,
// then presentation and infrastructure.
package main

import (
	"errors"
	"flag"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/roblaszczak/go-cleanarch/cleanarch"
	"gopkg.in/yaml.v3"
)

type config struct {
	Version           int      `yaml:"version"`
	Root              string   `yaml:"root"`
	IgnoreTests       bool     `yaml:"ignore_tests"`
	IgnorePackages    []string `yaml:"ignore_packages"`
	SharedModules     []string `yaml:"shared_modules"`
	AllowedViolations []string `yaml:"allow_violations"`
	Aliases           struct {
		Domain         []string `yaml:"domain"`
		Application    []string `yaml:"application"`
		Interfaces     []string `yaml:"interfaces"`
		Infrastructure []string `yaml:"infrastructure"`
	} `yaml:"aliases"`
}

var (
	defaultDomainAliases         = []string{"domain"}
	defaultApplicationAliases    = []string{"services"}
	defaultInterfacesAliases     = []string{"presentation"}
	defaultInfrastructureAliases = []string{"infrastructure"}
)

var crossModulePattern = regexp.MustCompile(`between ([\w-]+) and ([\w-]+) modules`)

func main() {
	var (
		configPath = flag.String("config", ".gocleanarch.yml", "config file path")
		debug      = flag.Bool("debug", false, "enable go-cleanarch debug logging")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("read config: %v\n", err)
	}
	root, err := resolveRoot(cfg.Root)
	if err != nil {
		log.Fatalf("resolve root: %v\n", err)
	}

	if *debug {
		cleanarch.Log.SetOutput(os.Stderr)
	}
	validator := cleanarch.NewValidator(layerAliases(cfg))

	ok, errs, err := validator.Validate(root, cfg.IgnoreTests, cfg.IgnorePackages)
	if err != nil {
		log.Fatalf("go-cleanarch failed: %v\n", err)
	}

	filtered := filterValidationErrors(errs, cfg)
	if !ok && len(filtered) > 0 {
		for _, validationErr := range filtered {
			log.Println(validationErr.Error())
		}
		log.Println("layer check failed")
		os.Exit(1)
	}
	log.Println("layer check passed")
}

func loadConfig(path string) (*config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Root == "" {
		cfg.Root = "."
	}
	return cfg, nil
}

func resolveRoot(root string) (string, error) {
	if root == "" {
		return "", errors.New("root must not be empty")
	}
	return filepath.Abs(root)
}

func layerAliases(cfg *config) map[string]cleanarch.Layer {
	aliases := map[string]cleanarch.Layer{}
	applyAliases(aliases, cfg.Aliases.Domain, defaultDomainAliases, cleanarch.LayerDomain)
	applyAliases(aliases, cfg.Aliases.Application, defaultApplicationAliases, cleanarch.LayerApplication)
	applyAliases(aliases, cfg.Aliases.Interfaces, defaultInterfacesAliases, cleanarch.LayerInterfaces)
	applyAliases(aliases, cfg.Aliases.Infrastructure, defaultInfrastructureAliases, cleanarch.LayerInfrastructure)
	return aliases
}

func applyAliases(dst map[string]cleanarch.Layer, custom []string, defaults []string, layer cleanarch.Layer) {
	candidates := defaults
	if len(custom) > 0 {
		candidates = custom
	}
	for _, alias := range candidates {
		if alias != "" {
			dst[alias] = layer
		}
	}
}

func filterValidationErrors(errs []cleanarch.ValidationError, cfg *config) []cleanarch.ValidationError {
	if len(errs) == 0 {
		return nil
	}
	shared := make(map[string]struct{}, len(cfg.SharedModules))
	for _, module := range cfg.SharedModules {
		if module = strings.TrimSpace(module); module != "" {
			shared[module] = struct{}{}
		}
	}

	filtered := make([]cleanarch.ValidationError, 0, len(errs))
	for _, validationErr := range errs {
		msg := validationErr.Error()
		if skipCrossModule(msg, shared) || allowed(msg, cfg.AllowedViolations) {
			continue
		}
		filtered = append(filtered, validationErr)
	}
	return filtered
}

func skipCrossModule(msg string, shared map[string]struct{}) bool {
	if len(shared) == 0 {
		return false
	}
	matches := crossModulePattern.FindStringSubmatch(msg)
	if len(matches) != 3 {
		return false
	}
	_, first := shared[matches[1]]
	_, second := shared[matches[2]]
	return first || second
}

func allowed(msg string, patterns []string) bool {
	for _, pattern := range patterns {
		if pattern != "" && strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
