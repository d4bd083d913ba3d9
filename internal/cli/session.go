package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Session is the locally remembered player, stored as session.json under
// the CLI home directory.
type Session struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
}

func sessionPath(home string) (string, error) {
	if err := os.MkdirAll(home, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(home, "session.json"), nil
}

func SaveSession(home string, s Session) error {
	path, err := sessionPath(home)
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return err
	}
	return nil
}

func LoadSession(home string) (Session, error) {
	path, err := sessionPath(home)
	if err != nil {
		return Session{}, err
	}
	body, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Session{}, fmt.Errorf("no player registered, run `stk register` first")
		}
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return Session{}, err
	}
	if strings.TrimSpace(s.PlayerID) == "" {
		return Session{}, fmt.Errorf("no player id found in session")
	}
	return s, nil
}

func ClearSession(home string) error {
	path, err := sessionPath(home)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return os.Remove(path)
}
