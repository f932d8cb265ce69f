// The geodds-admin binary manages users and inspects requests. The api key
// printed by add-user is shown exactly once; no read endpoint returns it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/geodds/geodds/pkg/config"
	"github.com/geodds/geodds/pkg/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "add-user":
		err = addUser(ctx, os.Args[2:])
	case "list-requests":
		err = listRequests(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  geodds-admin add-user -name <contact> [-roles admin,public] [-user-id <uuid>] [-api-key <key>]
  geodds-admin list-requests -user <uuid>`)
}

func openStore(ctx context.Context) (*store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, st.DB()); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func addUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add-user", flag.ExitOnError)
	name := fs.String("name", "", "Contact name (required)")
	roles := fs.String("roles", "public", "Comma-separated role list")
	userID := fs.String("user-id", "", "User id (UUID v4); generated when empty")
	apiKey := fs.String("api-key", "", "Api key; generated when empty")
	fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("-name is required")
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	var roleList []string
	for _, r := range strings.Split(*roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roleList = append(roleList, r)
		}
	}

	user, err := st.AddUser(ctx, *name, *userID, *apiKey, roleList)
	if err != nil {
		return err
	}

	fmt.Printf("user_id:    %s\n", user.ID)
	fmt.Printf("api_key:    %s\n", user.APIKey)
	fmt.Printf("roles:      %s\n", strings.Join(user.Roles, ","))
	fmt.Printf("user_token: %s:%s\n", user.ID, user.APIKey)
	return nil
}

func listRequests(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list-requests", flag.ExitOnError)
	userID := fs.String("user", "", "User id to list requests for (required)")
	fs.Parse(args)

	if *userID == "" {
		return fmt.Errorf("-user is required")
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	requests, err := st.GetRequestsByUser(ctx, *userID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tDATASET\tPRODUCT\tCREATED\tFAIL REASON")
	for _, r := range requests {
		reason := ""
		if r.FailReason != nil {
			reason = *r.FailReason
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Status, r.Dataset, r.Product,
			r.CreatedOn.Format(time.RFC3339), reason)
	}
	return w.Flush()
}
