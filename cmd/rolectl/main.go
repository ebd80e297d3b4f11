// rolectl is the operator's offline tool for the permission store: list
// principals, set levels, and inspect approval requests without going
// through the bot. Run it against the same data directory the bot uses,
// while the bot is stopped, since both sides assume a single writer.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/chitragupt/chitragupt/pkg/observability"
	"github.com/chitragupt/chitragupt/pkg/rbac"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	dataDir := flag.String("data", "data", "data directory holding the permission documents")
	rulesFile := flag.String("rules", "rules.json", "rules document file name")
	usersFile := flag.String("users", "users.json", "users document file name")
	requestsFile := flag.String("requests", "requests.json", "requests document file name")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: rolectl [flags] <command>\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Commands:\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  list                     list every principal\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  set <id> <level> [name]  set a principal's level\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  superadmins              list level-100 principals\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  requests                 list approval requests\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	store := rbac.NewStore(*dataDir, *rulesFile, *usersFile, *requestsFile,
		observability.NewLogger(observability.ErrorLevel, io.Discard), nil)
	if err := store.Load(); err != nil {
		log.WithError(err).Fatal("could not load permission store")
	}

	var err error
	switch args[0] {
	case "list":
		err = listPrincipals(store)
	case "set":
		err = setLevel(log, store, args[1:])
	case "superadmins":
		err = listSuperAdmins(store)
	case "requests":
		err = listRequests(store)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.WithError(err).Fatal("command failed")
	}
}

func listPrincipals(store *rbac.Store) error {
	principals := store.ListPrincipals()
	if len(principals) == 0 {
		fmt.Println("no principals")
		return nil
	}
	for _, p := range principals {
		special := ""
		if p.Special {
			special = " (chat)"
		}
		fmt.Printf("%d\tlevel %d\t%s%s\n", p.ID, int(p.Level), p.Name, special)
	}
	return nil
}

func setLevel(log *logrus.Logger, store *rbac.Store, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: set <id> <level> [name]")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("bad id %q: %w", args[0], err)
	}
	levelNum, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("bad level %q: %w", args[1], err)
	}
	p := rbac.Principal{ID: id, Level: rbac.Level(levelNum)}
	if len(args) > 2 {
		p.Name = args[2]
	}
	if err := store.UpsertPrincipal(p); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"id": id, "level": levelNum}).Info("principal updated")
	return nil
}

func listSuperAdmins(store *rbac.Store) error {
	ids := store.ListByLevel(rbac.LevelSuperAdmin)
	if len(ids) == 0 {
		fmt.Println("no SuperAdmins; the bot cannot approve anyone")
		return nil
	}
	for _, id := range ids {
		p, _ := store.GetPrincipal(id)
		fmt.Printf("%d\t%s\n", id, p.Name)
	}
	return nil
}

func listRequests(store *rbac.Store) error {
	for _, p := range store.ListPrincipals() {
		if req, ok := store.GetRequest(p.ID); ok {
			fmt.Printf("%d\t%s\tcreated %s\tprompts %d\n",
				req.RequesterID, req.Status, req.CreatedAt.Format("2006-01-02 15:04:05"), len(req.Prompts))
		}
	}
	return nil
}
