package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veranemoloko/download-panel/internal/domain"
	"github.com/veranemoloko/download-panel/internal/panel"
)

func newSettingsCmd(opts *rootOptions) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change backend settings",
	}

	settingsCmd.AddCommand(newSettingsShowCmd(opts), newSettingsSetCmd(opts))
	return settingsCmd
}

func newSettingsShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current settings as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.env(cmd)
			if err != nil {
				return err
			}

			settings, err := env.client.GetSettings(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get settings: %w", err)
			}
			return env.printJSON(settings)
		},
	}
}

// newSettingsSetCmd changes only the settings whose flags were given.
func newSettingsSetCmd(opts *rootOptions) *cobra.Command {
	var (
		proxyEnabled  bool
		proxyHost     string
		proxyPort     int
		proxyUser     string
		proxyPassword string
		mode          string
		byArtist      string
		singleFolder  string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update selected settings",
		Long: `Update selected settings. Settings not named by a flag keep their
current value.

Examples:
  panel settings set --proxy-enabled --proxy-host 10.0.0.2 --proxy-port 1080
  panel settings set --mode single_folder`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.env(cmd)
			if err != nil {
				return err
			}

			return env.withPanel(cmd.Context(), func(p *panel.Panel) error {
				settings, err := p.Gateway().GetSettings(cmd.Context())
				if err != nil {
					return err
				}

				flags := cmd.Flags()
				if flags.Changed("proxy-enabled") {
					settings.Proxy.Enabled = proxyEnabled
				}
				if flags.Changed("proxy-host") {
					settings.Proxy.Host = strings.TrimSpace(proxyHost)
				}
				if flags.Changed("proxy-port") {
					settings.Proxy.Port = proxyPort
				}
				if flags.Changed("proxy-username") {
					settings.Proxy.Username = proxyUser
				}
				if flags.Changed("proxy-password") {
					settings.Proxy.Password = proxyPassword
				}
				if flags.Changed("mode") {
					settings.Download.Mode = domain.DownloadMode(mode)
				}
				if flags.Changed("by-artist-template") {
					settings.Download.ByArtistTemplate = byArtist
				}
				if flags.Changed("single-folder-template") {
					settings.Download.SingleFolderTemplate = singleFolder
				}

				stored, err := p.Gateway().UpdateSettings(cmd.Context(), settings)
				if err != nil {
					return err
				}
				return env.printJSON(stored)
			})
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&proxyEnabled, "proxy-enabled", false, "Route metadata lookups through the SOCKS5 proxy")
	flags.StringVar(&proxyHost, "proxy-host", "", "Proxy host")
	flags.IntVar(&proxyPort, "proxy-port", 0, "Proxy port")
	flags.StringVar(&proxyUser, "proxy-username", "", "Proxy username")
	flags.StringVar(&proxyPassword, "proxy-password", "", "Proxy password")
	flags.StringVar(&mode, "mode", "", "Download layout: by_artist or single_folder")
	flags.StringVar(&byArtist, "by-artist-template", "", "Path template used in by_artist mode")
	flags.StringVar(&singleFolder, "single-folder-template", "", "Path template used in single_folder mode")

	return cmd
}

func newProvidersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List supported metadata sources and stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.env(cmd)
			if err != nil {
				return err
			}

			providers, err := env.client.Providers(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list providers: %w", err)
			}
			if env.json {
				return env.printJSON(providers)
			}

			fmt.Fprintf(env.out, "metadata sources: %s\n", strings.Join(providers.Playlists, ", "))
			fmt.Fprintf(env.out, "stores:           %s\n", strings.Join(providers.Stores, ", "))
			return nil
		},
	}
}
