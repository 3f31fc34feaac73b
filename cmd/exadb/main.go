package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/AndrewDonelson/exadb"
	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
)

type options struct {
	Version       bool   `short:"V" long:"version" description:"Print version and exit"`
	Verbose       bool   `short:"v" long:"verbose" description:"Log debug output"`
	PostgresDSN   string `long:"postgres" env:"EXADB_POSTGRES_DSN" description:"PostgreSQL connection string"`
	RedisAddr     string `long:"redis" env:"EXADB_REDIS_ADDR" description:"Redis address (host:port)"`
	RedisPassword string `long:"redis-password" env:"EXADB_REDIS_PASSWORD" description:"Redis password"`
	RedisDB       int    `long:"redis-db" env:"EXADB_REDIS_DB" default:"0" description:"Redis database number"`
	KeyPrefix     string `long:"key-prefix" env:"EXADB_KEY_PREFIX" description:"Redis key prefix"`
	Codec         string `long:"codec" env:"EXADB_CODEC" default:"msgpack" choice:"json" choice:"msgpack" description:"Cache value encoding"`
	EncryptionKey string `long:"encryption-key" env:"EXADB_ENCRYPTION_KEY" description:"Hex-encoded 32-byte payload encryption key"`
}

var opts options

type tablesCommand struct{}

type validateCommand struct {
	Args struct {
		Table string `positional-arg-name:"table" required:"true"`
		File  string `positional-arg-name:"file" description:"Row file; stdin when omitted"`
	} `positional-args:"yes"`
}

type migrateCommand struct{}

type exportCommand struct {
	Output string `short:"o" long:"output" description:"Output file; stdout when omitted"`
	Args   struct {
		Table string `positional-arg-name:"table" required:"true"`
	} `positional-args:"yes"`
}

type importCommand struct {
	Args struct {
		Table string `positional-arg-name:"table" required:"true"`
		File  string `positional-arg-name:"file" description:"Row file; stdin when omitted"`
	} `positional-args:"yes"`
}

type getCommand struct {
	Args struct {
		Table string `positional-arg-name:"table" required:"true"`
		ID    uint64 `positional-arg-name:"id" required:"true"`
	} `positional-args:"yes"`
}

func init() {
	f := &log.TextFormatter{
		FullTimestamp: true,
	}
	log.SetFormatter(f)
}

func main() {
	parser := newParser()
	_, err := parser.Parse()
	if opts.Version {
		fmt.Printf("exadb %s\n", exadb.Version())
		return
	}
	if err != nil {
		if fe, ok := err.(*flags.Error); ok && fe.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}
	if parser.Active == nil {
		parser.WriteHelp(os.Stderr)
		os.Exit(1)
	}
}

func newParser() *flags.Parser {
	parser := flags.NewParser(&opts, flags.Default)
	parser.SubcommandsOptional = true
	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		if opts.Verbose {
			log.SetLevel(log.DebugLevel)
		}
		if opts.Version || cmd == nil {
			return nil
		}
		return cmd.Execute(args)
	}
	mustAdd(parser.AddCommand("tables", "List table names", "Print the canonical name of every table.", &tablesCommand{}))
	mustAdd(parser.AddCommand("validate", "Check row text",
		"Parse every row of a table export and report the lines that fail to decode or would not round-trip.",
		&validateCommand{}))
	mustAdd(parser.AddCommand("migrate", "Create tables", "Create the PostgreSQL tables that do not exist yet.", &migrateCommand{}))
	mustAdd(parser.AddCommand("export", "Dump a table", "Write every row of a table as tab-separated text.", &exportCommand{}))
	mustAdd(parser.AddCommand("import", "Load a table", "Read tab-separated rows into a table, keeping ids and timestamps.", &importCommand{}))
	mustAdd(parser.AddCommand("get", "Print one row", "Fetch one entry and print its row text.", &getCommand{}))
	return parser
}

func mustAdd(_ *flags.Command, err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func (c *tablesCommand) Execute(_ []string) error {
	for _, t := range exadb.Tables() {
		fmt.Println(t)
	}
	return nil
}

func (c *validateCommand) Execute(_ []string) error {
	table, err := exadb.ParseTable(c.Args.Table)
	if err != nil {
		return err
	}
	in, closeIn, err := openInput(c.Args.File)
	if err != nil {
		return err
	}
	defer closeIn()

	total, bad, err := validateRows(table, in, os.Stdout)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"table": table.String(), "rows": total, "invalid": bad}).Info("validation finished")
	if bad > 0 {
		return fmt.Errorf("%d of %d rows are invalid", bad, total)
	}
	return nil
}

// validateRows checks every non-empty line of r and writes one report
// line per failure to w.
func validateRows(table exadb.DbTable, r io.Reader, w io.Writer) (total, bad int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimRight(sc.Text(), "\r")
		if text == "" {
			continue
		}
		total++
		e, err := exadb.ParseRow(text, table)
		if err == nil {
			err = e.Model.Validate()
		}
		if err == nil && e.RowString() != text {
			err = fmt.Errorf("row does not round-trip: re-encoded as %q", e.RowString())
		}
		if err != nil {
			bad++
			fmt.Fprintf(w, "line %d: %v\n", line, err)
		}
	}
	return total, bad, sc.Err()
}

func (c *migrateCommand) Execute(_ []string) error {
	return withStore(func(ctx context.Context, s *exadb.Store) error {
		if opts.PostgresDSN == "" {
			return exadb.ErrL3Unavailable
		}
		if err := s.Migrate(ctx); err != nil {
			return err
		}
		records, err := s.MigrationStatus(ctx)
		if err != nil {
			return err
		}
		for _, r := range records {
			log.WithFields(log.Fields{"table": r.Table, "step": r.Step, "applied": r.AppliedAt}).Info("migration")
		}
		return nil
	})
}

func (c *exportCommand) Execute(_ []string) error {
	table, err := exadb.ParseTable(c.Args.Table)
	if err != nil {
		return err
	}
	out := io.Writer(os.Stdout)
	if c.Output != "" {
		f, err := os.Create(c.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return withStore(func(ctx context.Context, s *exadb.Store) error {
		n, err := s.Export(ctx, table, out)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{"table": table.String(), "rows": n}).Info("export finished")
		return nil
	})
}

func (c *importCommand) Execute(_ []string) error {
	table, err := exadb.ParseTable(c.Args.Table)
	if err != nil {
		return err
	}
	in, closeIn, err := openInput(c.Args.File)
	if err != nil {
		return err
	}
	defer closeIn()
	return withStore(func(ctx context.Context, s *exadb.Store) error {
		_, err := s.Import(ctx, table, in)
		return err
	})
}

func (c *getCommand) Execute(_ []string) error {
	table, err := exadb.ParseTable(c.Args.Table)
	if err != nil {
		return err
	}
	return withStore(func(ctx context.Context, s *exadb.Store) error {
		e, err := s.Get(ctx, table, c.Args.ID)
		if err != nil {
			return err
		}
		fmt.Println(e.RowString())
		return nil
	})
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func storeConfig(o options) (exadb.Config, error) {
	c, err := exadb.CodecByName(o.Codec)
	if err != nil {
		return exadb.Config{}, err
	}
	cfg := exadb.Config{
		PostgresDSN:    o.PostgresDSN,
		RedisAddr:      o.RedisAddr,
		RedisPassword:  o.RedisPassword,
		RedisDB:        o.RedisDB,
		RedisKeyPrefix: o.KeyPrefix,
		Codec:          c,
		Logger:         exadb.NewLogrusLogger(log.StandardLogger()),
	}
	if o.EncryptionKey != "" {
		key, err := hex.DecodeString(o.EncryptionKey)
		if err != nil {
			return exadb.Config{}, fmt.Errorf("encryption key: %w", err)
		}
		cfg.EncryptionKey = key
	}
	return cfg, nil
}

// withStore opens a Store from the global options, runs fn and closes it.
// Interrupts cancel the context.
func withStore(fn func(context.Context, *exadb.Store) error) error {
	cfg, err := storeConfig(opts)
	if err != nil {
		return err
	}
	s, err := exadb.NewStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return fn(ctx, s)
}
