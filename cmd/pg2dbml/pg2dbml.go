package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/k0kubun/pp/v3"
	"github.com/pg2dbml/pg2dbml"
	"github.com/pg2dbml/pg2dbml/database"
	"github.com/pg2dbml/pg2dbml/database/file"
	"github.com/pg2dbml/pg2dbml/database/postgres"
	"github.com/pg2dbml/pg2dbml/logging"
	"github.com/pg2dbml/pg2dbml/report"
	"github.com/pg2dbml/pg2dbml/schema"
	"golang.org/x/term"
)

// version and revision are set via -ldflags
var version = "dev"
var revision = "HEAD"

type cmdOptions struct {
	file        string
	output      string
	reportPath  string
	decisions   schema.Decisions
	interactive bool
	strict      bool
	fixSyntax   bool
	debug       bool
	logLevel    string
	logFormat   string
}

// Return parsed connection config and command options. A database name in
// the positional arguments switches the source from file/stdin to a live
// catalog dump.
func parseOptions(args []string) (database.Config, *cmdOptions) {
	// Track parsed decisions in order
	var decisionParts []schema.Decisions

	var opts struct {
		User        string `short:"U" long:"user" description:"PostgreSQL user name" value-name:"user_name" default:"postgres"`
		Password    string `short:"W" long:"password" description:"PostgreSQL user password, overridden by $PGPASSWORD" value-name:"password"`
		Host        string `short:"h" long:"host" description:"Host to connect to the PostgreSQL server" value-name:"host_name" default:"127.0.0.1"`
		Port        uint   `short:"p" long:"port" description:"Port used for the connection" value-name:"port_num" default:"5432"`
		Socket      string `short:"S" long:"socket" description:"The unix domain socket path to use for connection" value-name:"socket"`
		SslMode     string `long:"ssl-mode" description:"SSL connection mode(disable,prefer,require,verify-ca,verify-full), overridden by $PGSSLMODE" value-name:"ssl_mode"`
		Prompt      bool   `long:"password-prompt" description:"Force PostgreSQL user password prompt"`
		File        string `short:"f" long:"file" description:"Read the schema dump from the file, rather than stdin" value-name:"dump_file" default:"-"`
		Output      string `short:"o" long:"output" description:"Write DBML to the file, rather than stdout" value-name:"dbml_file"`
		Report      string `long:"report" description:"Write the conversion report to the file (.json for JSON, Markdown otherwise)" value-name:"report_file"`
		Interactive bool   `short:"i" long:"interactive" description:"Prompt for conversion decisions on detected features instead of using defaults"`
		Strict      bool   `long:"strict" description:"Exit with status 1 when the conversion loses information or the output fails validation"`
		FixSyntax   bool   `long:"fix-syntax" description:"Rewrite common DBML syntax mistakes before validation"`
		Debug       bool   `long:"debug" description:"Dump the processed schema to stderr"`
		LogLevel    string `long:"log-level" description:"Log level(debug,info,warn,error)" value-name:"level" default:"info"`
		LogFormat   string `long:"log-format" description:"Log format(console,json)" value-name:"format" default:"console"`
		Help        bool   `long:"help" description:"Show this help"`
		Version     bool   `long:"version" description:"Show this version"`

		// Custom handlers for decision flags to preserve order
		Decisions       func(string) `long:"decisions" description:"YAML file to specify: array_type, unknown_type_fallback, check_constraint_action, complex_index_action, inheritance_action, partitioning_action (can be specified multiple times)"`
		DecisionsInline func(string) `long:"decisions-inline" description:"YAML object to specify the same keys as --decisions (can be specified multiple times)"`
	}

	opts.Decisions = func(path string) {
		part, err := database.ParseDecisionsFile(path)
		if err != nil {
			log.Fatal(err)
		}
		decisionParts = append(decisionParts, part)
	}
	opts.DecisionsInline = func(yaml string) {
		part, err := database.ParseDecisionsString(yaml)
		if err != nil {
			log.Fatal(err)
		}
		decisionParts = append(decisionParts, part)
	}

	parser := flags.NewParser(&opts, flags.None)
	parser.Usage = "[OPTIONS] [database] < dump.sql"
	args, err := parser.ParseArgs(args)
	if err != nil {
		log.Fatal(err)
	}

	if opts.Help {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}

	if opts.Version {
		fmt.Printf("%s (%s)\n", version, revision)
		os.Exit(0)
	}

	var databaseName string
	if len(args) == 1 {
		databaseName = args[0]
	} else if len(args) > 1 {
		fmt.Printf("Multiple databases are given: %v\n\n", args)
		parser.WriteHelp(os.Stdout)
		os.Exit(1)
	}

	switch strings.ToLower(opts.SslMode) {
	case "", "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		fmt.Printf("Wrong value for ssl-mode is given: %v\n\n", opts.SslMode)
		parser.WriteHelp(os.Stdout)
		os.Exit(1)
	}

	password, ok := os.LookupEnv("PGPASSWORD")
	if !ok {
		password = opts.Password
	}

	if opts.Prompt {
		fmt.Printf("Enter Password: ")
		pass, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			log.Fatal(err)
		}
		password = string(pass)
	}

	dbConfig := database.Config{
		DbName:   databaseName,
		User:     opts.User,
		Password: password,
		Host:     opts.Host,
		Port:     int(opts.Port),
		Socket:   opts.Socket,
		SslMode:  strings.ToLower(opts.SslMode),
	}
	cmdOpts := cmdOptions{
		file:        opts.File,
		output:      opts.Output,
		reportPath:  opts.Report,
		decisions:   database.MergeDecisions(decisionParts...),
		interactive: opts.Interactive,
		strict:      opts.Strict,
		fixSyntax:   opts.FixSyntax,
		debug:       opts.Debug,
		logLevel:    opts.LogLevel,
		logFormat:   opts.LogFormat,
	}
	return dbConfig, &cmdOpts
}

func main() {
	config, opts := parseOptions(os.Args[1:])
	logger := logging.New(logging.Config{Level: opts.logLevel, Format: opts.logFormat})

	var src database.Source
	if config.DbName == "" {
		src = file.NewSource(opts.file)
	} else {
		var err error
		src, err = postgres.NewSource(config)
		if err != nil {
			logger.Fatal().Err(err).Str("database", config.DbName).Msg("failed to connect")
		}
		defer src.Close()
	}

	dump, err := src.DumpSchema()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to read the schema dump")
	}

	decisions := opts.decisions
	if opts.interactive {
		decisions = promptDecisions(pg2dbml.Inspect(dump), decisions)
	}

	result := pg2dbml.Convert(dump, pg2dbml.Options{
		Decisions: decisions,
		FixSyntax: opts.fixSyntax,
	})

	if opts.debug {
		pp.Fprintln(os.Stderr, result.Schema)
	}

	rep := result.Report
	logger.Info().
		Int("tables", rep.Statistics.Tables).
		Int("relationships", rep.Statistics.Relationships).
		Int("parsing_errors", len(rep.ParsingErrors)).
		Int("compatibility_issues", len(rep.CompatibilityIssues)).
		Msg("conversion finished")
	for _, warning := range rep.Warnings {
		logger.Warn().Msg(warning)
	}
	for _, issue := range rep.Validation.Errors {
		logger.Error().Int("line", issue.LineNumber).Str("type", issue.ErrorType).Msg(issue.Message)
	}

	if opts.output == "" {
		fmt.Print(result.DBML)
	} else if err := os.WriteFile(opts.output, []byte(result.DBML), 0644); err != nil {
		logger.Fatal().Err(err).Str("path", opts.output).Msg("failed to write the DBML file")
	}

	if opts.reportPath != "" {
		if err := writeReport(opts.reportPath, rep); err != nil {
			logger.Fatal().Err(err).Str("path", opts.reportPath).Msg("failed to write the report")
		}
	}

	if opts.strict {
		violations := rep.StrictViolations()
		for _, violation := range violations {
			logger.Error().Msg(violation)
		}
		if len(violations) > 0 {
			os.Exit(1)
		}
	}
}

func writeReport(path string, rep *report.Report) error {
	if strings.HasSuffix(path, ".json") {
		data, err := rep.JSON()
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0644)
	}
	return os.WriteFile(path, []byte(rep.Markdown()), 0644)
}
