package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"flowgate/internal/access"
	"flowgate/internal/clients"
	"flowgate/internal/flowrequest/models"
	"flowgate/internal/platform/config"
	"flowgate/internal/platform/database"
)

var destinationCmd = &cobra.Command{
	Use:   "destination",
	Short: "Manage destinations",
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Manage REST clients",
}

var (
	destName      string
	destPublicKey string

	clientName        string
	clientSecret      string
	clientDestination string
	clientScopes      []string
	clientSuper       bool
)

var registerDestinationCmd = &cobra.Command{
	Use:   "register <destination-id>",
	Short: "Create or update a destination",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done, err := openClients(cmd.Context())
		if err != nil {
			return err
		}
		defer done()
		d := &models.Destination{ID: args[0], Name: destName, KafkaPublicKey: destPublicKey}
		if err := svc.RegisterDestination(cmd.Context(), d); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "destination %s registered\n", d.ID)
		return nil
	},
}

var registerClientCmd = &cobra.Command{
	Use:   "register <client-id>",
	Short: "Create or update a REST client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done, err := openClients(cmd.Context())
		if err != nil {
			return err
		}
		defer done()
		c := &clients.RESTClient{
			ClientID:      args[0],
			Name:          clientName,
			DestinationID: clientDestination,
			Super:         clientSuper,
		}
		for _, sc := range clientScopes {
			c.Scopes = append(c.Scopes, access.Scope(strings.TrimSpace(sc)))
		}
		if err := svc.RegisterClient(cmd.Context(), c, clientSecret); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "client %s registered with scopes %v\n", c.ClientID, c.Scopes)
		return nil
	},
}

// openClients connects to the client registry. Registrations only make
// sense against a persistent store.
func openClients(ctx context.Context) (*clients.Service, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("database.url is not set")
	}
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return clients.NewService(clients.NewPostgresStore(db)), func() { _ = db.Close() }, nil
}

func init() {
	registerDestinationCmd.Flags().StringVar(&destName, "name", "", "display name")
	registerDestinationCmd.Flags().StringVar(&destPublicKey, "kafka-public-key", "", "public key announced to sources")
	_ = registerDestinationCmd.MarkFlagRequired("name")
	destinationCmd.AddCommand(registerDestinationCmd)

	registerClientCmd.Flags().StringVar(&clientName, "name", "", "display name")
	registerClientCmd.Flags().StringVar(&clientSecret, "secret", "", "client secret")
	registerClientCmd.Flags().StringVar(&clientDestination, "destination", "", "destination the client acts for")
	registerClientCmd.Flags().StringSliceVar(&clientScopes, "scope", nil, "granted scope, repeatable (resource:action)")
	registerClientCmd.Flags().BoolVar(&clientSuper, "super", false, "skip ownership checks")
	_ = registerClientCmd.MarkFlagRequired("secret")
	clientCmd.AddCommand(registerClientCmd)
}
