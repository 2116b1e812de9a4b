package versions

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/vigil/dbschema"
	"github.com/stokaro/vigil/store"
	"github.com/stokaro/vigil/version"
)

var versionsCmd = &cobra.Command{
	Use:   "versions [create|list|current|compare|check-update]",
	Short: "Manage named schema versions",
	Long: `Create and inspect checksummed schema version snapshots.

Examples:
  vigil versions create 1.2.0 --db-url ... --description "add orders"
  vigil versions list --db-url ...
  vigil versions compare 1.1.0 1.2.0 --db-url ...
  vigil versions check-update --db-url ...`,
	RunE: listCommand,
}

const (
	dbURLFlag       = "db-url"
	descriptionFlag = "description"
)

var versionsFlags = map[string]cobraflags.Flag{
	dbURLFlag: &cobraflags.StringFlag{
		Name:  dbURLFlag,
		Value: "",
		Usage: "PostgreSQL connection URL (required)",
	},
}

var createFlags = map[string]cobraflags.Flag{
	dbURLFlag: &cobraflags.StringFlag{
		Name:  dbURLFlag,
		Value: "",
		Usage: "PostgreSQL connection URL (required)",
	},
	descriptionFlag: &cobraflags.StringFlag{
		Name:  descriptionFlag,
		Value: "",
		Usage: "What changed in this version (required)",
	},
}

func NewVersionsCommand() *cobra.Command {
	cobraflags.RegisterMap(versionsCmd, versionsFlags)

	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Snapshot the live schema as a new current version",
		Args:  cobra.ExactArgs(1),
		RunE:  createCommand,
	}
	cobraflags.RegisterMap(createCmd, createFlags)
	versionsCmd.AddCommand(createCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all recorded versions",
		RunE:  listCommand,
	}
	cobraflags.RegisterMap(listCmd, versionsFlags)
	versionsCmd.AddCommand(listCmd)

	currentCmd := &cobra.Command{
		Use:   "current",
		Short: "Show the current version",
		RunE:  currentCommand,
	}
	cobraflags.RegisterMap(currentCmd, versionsFlags)
	versionsCmd.AddCommand(currentCmd)

	compareCmd := &cobra.Command{
		Use:   "compare <version1> <version2>",
		Short: "Diff the snapshots of two stored versions",
		Args:  cobra.ExactArgs(2),
		RunE:  compareCommand,
	}
	cobraflags.RegisterMap(compareCmd, versionsFlags)
	versionsCmd.AddCommand(compareCmd)

	checkCmd := &cobra.Command{
		Use:   "check-update",
		Short: "Check whether the live schema moved past the current version",
		RunE:  checkUpdateCommand,
	}
	cobraflags.RegisterMap(checkCmd, versionsFlags)
	versionsCmd.AddCommand(checkCmd)

	return versionsCmd
}

func manager(ctx context.Context, flags map[string]cobraflags.Flag) (*dbschema.DatabaseConnection, *version.Manager, error) {
	dbURL := flags[dbURLFlag].GetString()
	if dbURL == "" {
		return nil, nil, fmt.Errorf("--%s is required", dbURLFlag)
	}

	conn, err := dbschema.ConnectToDatabase(dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	st := store.New(conn.DB())
	if err := st.Initialize(ctx); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return conn, version.NewManager(conn.Reader(), st), nil
}

func createCommand(cmd *cobra.Command, args []string) error {
	conn, mgr, err := manager(cmd.Context(), createFlags)
	if err != nil {
		return err
	}
	defer conn.Close()

	created, err := mgr.Create(cmd.Context(), args[0], createFlags[descriptionFlag].GetString())
	if err != nil {
		return err
	}
	fmt.Printf("Created version %s (checksum %s)\n", created.Version, created.Checksum)
	return nil
}

func listCommand(cmd *cobra.Command, _ []string) error {
	conn, mgr, err := manager(cmd.Context(), versionsFlags)
	if err != nil {
		return err
	}
	defer conn.Close()

	versions, err := mgr.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Println("No versions recorded")
		return nil
	}

	for _, v := range versions {
		marker := " "
		if v.IsCurrent {
			marker = "*"
		}
		fmt.Printf("%s %-20s %s  %s\n", marker, v.Version, v.AppliedAt.Format("2006-01-02 15:04:05"), v.Description)
	}
	return nil
}

func currentCommand(cmd *cobra.Command, _ []string) error {
	conn, mgr, err := manager(cmd.Context(), versionsFlags)
	if err != nil {
		return err
	}
	defer conn.Close()

	current, err := mgr.Current(cmd.Context())
	if err != nil {
		return err
	}
	if current == nil {
		fmt.Println("No current version; create one with: vigil versions create <name>")
		return nil
	}

	fmt.Printf("Version:     %s\n", current.Version)
	fmt.Printf("Description: %s\n", current.Description)
	fmt.Printf("Applied at:  %s\n", current.AppliedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Checksum:    %s\n", current.Checksum)
	return nil
}

func compareCommand(cmd *cobra.Command, args []string) error {
	conn, mgr, err := manager(cmd.Context(), versionsFlags)
	if err != nil {
		return err
	}
	defer conn.Close()

	result, err := mgr.CompareVersions(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}

	diff := result.Differences
	if !diff.HasChanges() {
		fmt.Printf("Versions %s and %s are identical\n", args[0], args[1])
		return nil
	}

	fmt.Printf("Differences between %s and %s (severity: %s)\n", args[0], args[1], diff.Severity())
	fmt.Println(strings.Repeat("=", 40))
	for name, count := range diff.ByCategory() {
		if count > 0 {
			fmt.Printf("  %-12s %d change(s)\n", name, count)
		}
	}
	return nil
}

func checkUpdateCommand(cmd *cobra.Command, _ []string) error {
	conn, mgr, err := manager(cmd.Context(), versionsFlags)
	if err != nil {
		return err
	}
	defer conn.Close()

	check, err := mgr.CheckUpdate(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Println(check.Message)
	return nil
}
