package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

const (
	environmentKey     = "environment"
	boardKey           = "board"
	environmentSection = "env:"
)

var (
	errEnvironmentMissing = errors.New("no active environment configured")
	errBoardMissing       = errors.New("environment has no board")
)

// Project is the part of platformio.ini the packager needs.
type Project struct {
	// Environment is the first token of the environment key.
	Environment string
	// Candidates holds every token of the environment key, Environment first.
	Candidates []string
	// Board is the board key of the env:<Environment> section.
	Board string
}

// LoadProject reads the active environment from section of the INI file at path.
// Only the first whitespace separated token of the environment value is used.
func LoadProject(path, section string) (*Project, error) {
	if section == "" {
		section = DefaultProjectSection
	}

	//nolint:exhaustruct // Remaining load options keep their defaults.
	file, err := ini.LoadSources(ini.LoadOptions{
		Insensitive:                false,
		InsensitiveKeys:            true,
		AllowPythonMultilineValues: true,
		SpaceBeforeInlineComment:   true,
		SkipUnrecognizableLines:    true,
	}, filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read project config %s: %w", path, err)
	}

	sec, err := file.GetSection(section)
	if err != nil {
		return nil, fmt.Errorf("section [%s]: %w", section, errEnvironmentMissing)
	}

	tokens := strings.Fields(sec.Key(environmentKey).String())
	if len(tokens) == 0 {
		return nil, fmt.Errorf("[%s] %s: %w", section, environmentKey, errEnvironmentMissing)
	}

	project := &Project{
		Environment: tokens[0],
		Candidates:  tokens,
	}

	envSection, err := file.GetSection(environmentSection + project.Environment)
	if err != nil || !envSection.HasKey(boardKey) {
		return nil, fmt.Errorf("[%s%s]: %w", environmentSection, project.Environment, errBoardMissing)
	}

	project.Board = strings.TrimSpace(envSection.Key(boardKey).String())

	return project, nil
}
