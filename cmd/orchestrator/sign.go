package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/secrets"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/signature"
)

func signCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign an instruction file with the agent's signing key",
		Long: `Sign reads an instruction JSON document, computes its canonical
signature using the signing key from the environment, and prints the
signed instruction to stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSign(cmd.Context(), file)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "instruction file to sign (- for stdin)")
	return cmd
}

func runSign(ctx context.Context, file string) error {
	var raw []byte
	var err error
	if file == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(file)
	}
	if err != nil {
		return fmt.Errorf("read instruction: %w", err)
	}

	var instr domain.Instruction
	if err := json.Unmarshal(raw, &instr); err != nil {
		return fmt.Errorf("parse instruction: %w", err)
	}

	validator := signature.NewValidator(secrets.NewEnvStore())
	sig, err := validator.Sign(ctx, instr)
	if err != nil {
		return fmt.Errorf("sign instruction: %w", err)
	}
	instr.Signature = sig

	out, err := json.MarshalIndent(instr, "", "  ")
	if err != nil {
		return fmt.Errorf("encode instruction: %w", err)
	}
	fmt.Println(string(out))
	fmt.Fprintf(os.Stderr, "%s signed %s for agent %s\n",
		color.New(color.FgGreen).Sprint("✓"), instr.InstructionID, instr.AgentID)
	return nil
}
