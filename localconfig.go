package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/NebulaNode/nebula/internal/lib/nebula"
)

// configDir is overridable for tests.
var configDir = os.UserConfigDir

func nebulaConfigPath(name string) (string, error) {
	cfgDir, err := configDir()
	if err != nil {
		return "", err
	}
	cfgPath := filepath.Join(cfgDir, "nebula", name)
	err = os.MkdirAll(filepath.Dir(cfgPath), 0775) // user+group RWX, others RX
	if err != nil {
		return "", fmt.Errorf("error making directory:%s, error:%w", cfgDir, err)
	}
	return cfgPath, nil
}

func ProfileFilename() (string, error) {
	return nebulaConfigPath("nebula.yaml")
}

func DefaultJournalPath() (string, error) {
	return nebulaConfigPath("journal.db")
}

// LoadProfile reads the saved validator profile. A missing file returns os.ErrNotExist (wrapped) along with the
// default profile.
func LoadProfile() (nebula.Profile, error) {
	cfgName, err := ProfileFilename()
	if err != nil {
		return nebula.DefaultProfile(), err
	}
	file, err := os.Open(cfgName)
	if err != nil {
		return nebula.DefaultProfile(), err
	}
	defer file.Close()

	var profile nebula.Profile
	if err = yaml.NewDecoder(file).Decode(&profile); err != nil {
		return nebula.DefaultProfile(), fmt.Errorf("error parsing %s: %w", cfgName, err)
	}
	return profile.WithDefaults(), nil
}

// SaveProfile writes profile into a temp file first, replacing the profile only if fully written.
func SaveProfile(profile nebula.Profile) error {
	cfgName, err := ProfileFilename()
	if err != nil {
		return err
	}
	temp, err := os.CreateTemp(filepath.Dir(cfgName), filepath.Base(cfgName)+".*")
	if err != nil {
		return err
	}
	encoder := yaml.NewEncoder(temp)
	err = encoder.Encode(profile)
	if err == nil {
		err = encoder.Close()
	}
	if err != nil {
		_ = temp.Close()
		_ = os.Remove(temp.Name())
		return fmt.Errorf("error saving profile: %w", err)
	}

	err = temp.Close()
	if err != nil {
		return err
	}

	err = os.Rename(temp.Name(), cfgName)
	if err != nil {
		return err
	}
	slog.Info("profile saved", "file", cfgName)
	return nil
}
