package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Wolfe-Services/Tachikoma-sub024/internal/audit"
	"github.com/Wolfe-Services/Tachikoma-sub024/internal/config"
)

func auditCmd() *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print the most recent audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			if cfg.Audit.Backend == "sqlite" || cfg.Audit.Backend == "none" {
				return fmt.Errorf("audit tail supports the file backend; configured backend is %q", cfg.Audit.Backend)
			}

			entries, err := tailEntries(cfg.AuditPath(), n)
			if err != nil {
				return err
			}
			for _, e := range entries {
				line, err := json.Marshal(e)
				if err != nil {
					continue
				}
				fmt.Println(string(line))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&n, "lines", "n", 20, "number of entries to print")
	return cmd
}

// tailEntries reads the last n well-formed entries from the JSONL log.
func tailEntries(path string, n int) ([]audit.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var ring []audit.Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 256*1024), 4*1024*1024)
	for scanner.Scan() {
		var e audit.Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		ring = append(ring, e)
		if len(ring) > n {
			ring = ring[1:]
		}
	}
	return ring, scanner.Err()
}
