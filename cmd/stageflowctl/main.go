package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cordum/stageflow/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultGateway = "http://localhost:8081"

type cli struct {
	v   *viper.Viper
	out io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), out: out}
	root := &cobra.Command{
		Use:           "stageflowctl",
		Short:         "stageflow workflow configuration CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("gateway", defaultGateway, "gateway base url")
	root.PersistentFlags().String("api-key", "", "api key")
	root.PersistentFlags().String("principal", "", "principal recorded on saves")
	root.PersistentFlags().String("app", "", "application id")
	_ = c.v.BindPFlags(root.PersistentFlags())
	_ = c.v.BindEnv("gateway", "STAGEFLOW_GATEWAY")
	_ = c.v.BindEnv("api-key", "STAGEFLOW_API_KEY")
	_ = c.v.BindEnv("principal", "STAGEFLOW_PRINCIPAL")
	_ = c.v.BindEnv("app", "STAGEFLOW_APPLICATION")

	root.AddCommand(
		c.catalogCmd(),
		c.configCmd(),
		c.previewCmd(),
		c.statusCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (c *cli) client() *client.Client {
	cl := client.New(strings.TrimRight(c.v.GetString("gateway"), "/"), strings.TrimSpace(c.v.GetString("api-key")))
	cl.Principal = strings.TrimSpace(c.v.GetString("principal"))
	return cl
}

func (c *cli) application() (string, error) {
	app := strings.TrimSpace(c.v.GetString("app"))
	if app == "" {
		return "", fmt.Errorf("application id required (--app or STAGEFLOW_APPLICATION)")
	}
	return app, nil
}

func (c *cli) printJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, string(data))
	return err
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show gateway status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := c.client().GetStatus(cmd.Context())
			if err != nil {
				return err
			}
			return c.printJSON(status)
		},
	}
}
