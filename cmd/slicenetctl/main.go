// slicenetctl: Inspect and serve the network services of a slice from a
// persisted topology snapshot.
//
// Commands:
//   networks              List network services
//   show <name>           Service details, subnet and allocations
//   allocations <name>    Addresses allocated from a service subnet
//   serve                 Run the read-only inspection API
package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sliceworks/slicenet/pkg/config"
	"github.com/sliceworks/slicenet/pkg/netservice"
	"github.com/sliceworks/slicenet/pkg/reservation"
	"github.com/sliceworks/slicenet/pkg/topology"
)

var version = "dev"

var (
	configPath string
	statePath  string
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	log := logger.Sugar()

	root := &cobra.Command{
		Use:     "slicenetctl",
		Short:   "Inspect the network services of a slice",
		Version: version,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "slicenet.yaml", "config file")
	root.PersistentFlags().StringVar(&statePath, "state", "", "topology snapshot, overrides the config")

	root.AddCommand(&cobra.Command{
		Use:   "networks",
		Short: "List network services",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := load(log)
			if err != nil {
				return err
			}
			fmt.Printf("%-20s %-12s %-6s %-5s %s\n", "NAME", "TYPE", "LAYER", "IFACES", "SUBNET")
			for _, s := range mgr.Services() {
				t, _ := s.Type()
				ifaces, _ := s.Interfaces()
				fmt.Printf("%-20s %-12s %-6s %-5d %s\n", s.Name(), t, t.Layer(), len(ifaces), s.SubnetDisplay())
			}
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Show one network service in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := load(log)
			if err != nil {
				return err
			}
			s, err := mgr.Service(args[0])
			if err != nil {
				return err
			}

			t, _ := s.Type()
			site, _ := s.Site()
			instantiated, _ := s.IsInstantiated()
			fmt.Printf("Name:         %s\n", s.Name())
			fmt.Printf("Type:         %s (%s)\n", t, t.Layer())
			fmt.Printf("Site:         %s\n", site)
			fmt.Printf("Instantiated: %v\n", instantiated)
			fmt.Printf("Reservation:  %s\n", s.ReservationState())
			fmt.Printf("Subnet:       %s\n", s.SubnetDisplay())
			fmt.Printf("Gateway:      %s\n", s.GatewayDisplay())

			ifaces, err := s.Interfaces()
			if err != nil {
				return err
			}
			fmt.Println("Interfaces:")
			for _, ifc := range ifaces {
				line := fmt.Sprintf("  %-24s site=%s model=%s", ifc.Name, ifc.Site(), ifc.Model)
				if ifc.VLAN != "" {
					line += " vlan=" + ifc.VLAN
				}
				if ifc.Meta.Addr != "" {
					line += " addr=" + ifc.Meta.Addr
				}
				fmt.Println(line)
			}
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "allocations <name>",
		Short: "List addresses allocated from a service subnet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := load(log)
			if err != nil {
				return err
			}
			s, err := mgr.Service(args[0])
			if err != nil {
				return err
			}
			allocated, err := s.AllocatedIPs()
			if err != nil {
				return err
			}
			out := make([]string, 0, len(allocated))
			for _, ip := range allocated {
				out = append(out, ip.String())
			}
			fmt.Println(strings.Join(out, "\n"))
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only inspection API",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, env, err := load(log)
			if err != nil {
				return err
			}
			addr := env.cfg.Slice.ListenAddr
			if addr == "" {
				addr = ":8080"
			}

			mux := http.NewServeMux()
			env.store.RegisterRoutes(mux)
			log.Infow("serving inspection API", "addr", addr)
			return http.ListenAndServe(addr, mux)
		},
	})

	if err := root.Execute(); err != nil {
		log.Errorw("command failed", "error", err)
		os.Exit(1)
	}
}

type environment struct {
	cfg   *config.Config
	store *topology.MemStore
}

// load builds a manager from the config file and topology snapshot.
func load(log *zap.SugaredLogger) (*netservice.Manager, *environment, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		// Missing config is fine, defaults apply.
		if !errors.Is(err, os.ErrNotExist) {
			return nil, nil, err
		}
		cfg = &config.Config{}
		cfg.ApplyDefaults()
	}

	path := statePath
	if path == "" {
		path = cfg.Slice.StatePath
	}

	store := topology.NewMemStore(log.Named("topology"))
	if path != "" {
		if err := store.Load(path); err != nil {
			return nil, nil, fmt.Errorf("loading topology snapshot %q: %w", path, err)
		}
		log.Infow("topology snapshot loaded", "path", path, "services", len(store.Services()))
	}

	mgr := netservice.NewManager(cfg.Slice, store, reservation.NewStatic(), log)
	return mgr, &environment{cfg: cfg, store: store}, nil
}
