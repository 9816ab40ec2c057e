package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default .cssaudit.yaml config file",
	Long:  `Create a .cssaudit.yaml configuration file in the current directory with sensible defaults.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return writeDefaultConfig(defaultConfigPath, force)
	},
}

func writeDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := os.WriteFile(path, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Println("Created", path)
	return nil
}

const defaultConfig = `# cssaudit configuration
# Precedence: flags > CSSAUDIT_* env vars > this file > defaults.
# Env vars use _ between sections and __ for a hyphen:
#   CSSAUDIT_SCAN_MAX__PAGES=100 sets scan.max-pages

verbose: false
log-level: info

store:
  driver: memory           # memory | sqlite | postgres
  dsn: ""                  # sqlite path or postgres URL

scan:
  base-url: ""
  max-pages: 50
  exclude: []              # doublestar path patterns, e.g. "/wp-admin/**"
  ignore-file: .cssauditignore
  allowlist:               # variable prefixes never reported as unresolved
    - "--wp--"
    - "--wp-admin-"
    - "--wp-block-"
    - "--wp-components-"

fetch:
  mode: http               # http | browser
  timeout: 60s
  wait-for-selector: ""
  user-agent: ""
  viewport-width: 1920
  viewport-height: 1080
  insecure: false
  cache-size: 256
  har:
    enabled: false
    dir: har

server:
  addr: ":8080"
  allowed-origins: []
  rate-limit:
    rps: 1
    burst: 5

monitoring:
  enabled: false
  interval: 60             # minutes

events:
  nats-url: ""
  nats-subject: cssaudit
  nats-stream: CSSAUDIT

artifacts:
  s3:
    bucket: ""             # HAR files go to S3 when set
    region: us-east-1
    endpoint: ""
    prefix: har
    use-path-style: false

analyze:
  paths:
    - "**/*.css"
  output-format: issues    # issues | summary | full | json | markdown
  fail-under: 0
`

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite existing config file")
}
