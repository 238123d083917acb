package cli

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestRunStatusNotRunning(t *testing.T) {
	initTestRepo(t)
	if err := runStatus(&cobra.Command{}, nil); err != nil {
		t.Fatalf("runStatus: %v", err)
	}
}

func TestRunStatusAfterInit(t *testing.T) {
	initTestRepo(t)
	initBaseBranch = ""
	if err := runInit(&cobra.Command{}, nil); err != nil {
		t.Fatalf("runInit: %v", err)
	}
	if err := runStatus(&cobra.Command{}, nil); err != nil {
		t.Fatalf("runStatus: %v", err)
	}
}
