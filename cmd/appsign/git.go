package main

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/fwtools/appsign/pkg/pipeline"
)

// gitCommitToken asks git for the current commit, shortened to the width of
// the git_sha header field.
func gitCommitToken() (string, error) {
	out, err := exec.Command("git", "rev-parse", fmt.Sprintf("--short=%d", pipeline.GitSHASize), "HEAD").Output()
	if err != nil {
		return "", fmt.Errorf("could not get commit from git: %w", err)
	}
	token := strings.TrimSpace(string(out))
	if len(token) > pipeline.GitSHASize {
		token = token[:pipeline.GitSHASize]
	}
	return token, nil
}
