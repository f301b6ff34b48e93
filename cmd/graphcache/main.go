package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/hanpama/graphcache/internal/cache"
	"github.com/hanpama/graphcache/internal/eventbus"
	"github.com/hanpama/graphcache/internal/language"
	"github.com/hanpama/graphcache/internal/otel"
	"github.com/hanpama/graphcache/internal/server"
)

const rootUsage = `graphcache — normalized GraphQL cache & tools

USAGE:
  graphcache <command> [flags]

COMMANDS:
  serve            Run the HTTP cache inspector
  normalize        Normalize a GraphQL result into store records
  diff             Diff a query against a store snapshot
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -server.addr <addr>        HTTP listen address (default: :8080)
  -server.pretty             Pretty-print JSON responses
  -server.timeout <duration> Per-request timeout, e.g. 10s (default: 10s)
  -server.cors <origin>      Allowed CORS origin. Repeatable
  -schema <file>             GraphQL SDL used for fragment type matching
  -otel.endpoint <addr>      OTLP collector endpoint
  -otel.service <name>       OpenTelemetry service name (default: graphcache)
`

const normalizeUsage = `normalize FLAGS:
  -query <file>       Query document (required)
  -data <file>        JSON result to normalize (required)
  -variables <file>   JSON variables
  -operation <name>   Operation to use when the document has several
  -schema <file>      GraphQL SDL used for fragment type matching
  (Prints the resulting store snapshot as JSON)
`

const diffUsage = `diff FLAGS:
  -store <file>       Store snapshot JSON (required)
  -query <file>       Query document (required)
  -variables <file>   JSON variables
  -operation <name>   Operation to use when the document has several
  -schema <file>      GraphQL SDL used for fragment type matching
  (Prints the cached result and the selections still missing)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("graphcache", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "normalize":
		return cmdNormalize(cmdArgs)
	case "diff":
		return cmdDiff(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Print(serveUsage)
	case "normalize":
		fmt.Print(normalizeUsage)
	case "diff":
		fmt.Print(diffUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// cacheOptions builds the cache options shared by all commands. A schema
// file upgrades fragment matching from heuristic to schema-aware.
func cacheOptions(schemaFile string) ([]cache.Option, error) {
	if schemaFile == "" {
		return nil, nil
	}
	src, err := os.ReadFile(schemaFile)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	sch, err := language.LoadSchema(schemaFile, string(src))
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	return []cache.Option{cache.WithFragmentMatcher(cache.NewSchemaMatcher(sch))}, nil
}

func readJSONFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func cmdServe(args []string) error {
	addr := ":8080"
	pretty := false
	timeout := 10 * time.Second
	schemaFile := ""
	otelEndpoint := ""
	otelService := "graphcache"
	var corsOrigins stringListFlag

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&addr, "server.addr", addr, "HTTP listen address")
	fs.BoolVar(&pretty, "server.pretty", pretty, "Pretty-print JSON responses")
	fs.DurationVar(&timeout, "server.timeout", timeout, "Per-request timeout")
	fs.Var(&corsOrigins, "server.cors", "Allowed CORS origin")
	fs.StringVar(&schemaFile, "schema", schemaFile, "GraphQL SDL for fragment matching")
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}

	copts, err := cacheOptions(schemaFile)
	if err != nil {
		return err
	}
	c := cache.New(copts...)

	eventbus.Use(eventbus.New())
	shutdown, err := otel.Setup(otelEndpoint, otelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	var sopts []server.Option
	if pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if timeout > 0 {
		sopts = append(sopts, server.WithTimeout(timeout))
	}
	if len(corsOrigins) > 0 {
		sopts = append(sopts, server.WithCORS(corsOrigins...))
	}
	h := server.New(c, sopts...)

	mux := http.NewServeMux()
	mux.Handle("/", h)

	log.Printf("cache inspector listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

func cmdNormalize(args []string) error {
	queryFile := ""
	dataFile := ""
	variablesFile := ""
	operation := ""
	schemaFile := ""

	fs := flag.NewFlagSet("normalize", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&queryFile, "query", queryFile, "Query document")
	fs.StringVar(&dataFile, "data", dataFile, "JSON result to normalize")
	fs.StringVar(&variablesFile, "variables", variablesFile, "JSON variables")
	fs.StringVar(&operation, "operation", operation, "Operation name")
	fs.StringVar(&schemaFile, "schema", schemaFile, "GraphQL SDL for fragment matching")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, normalizeUsage)
		return err
	}
	if queryFile == "" || dataFile == "" {
		fmt.Fprint(os.Stderr, normalizeUsage)
		return fmt.Errorf("-query and -data are required")
	}

	querySrc, err := os.ReadFile(queryFile)
	if err != nil {
		return fmt.Errorf("read query: %w", err)
	}
	doc, err := language.ParseQuery(string(querySrc))
	if err != nil {
		return fmt.Errorf("parse query: %w", err)
	}
	var data map[string]any
	if err := readJSONFile(dataFile, &data); err != nil {
		return fmt.Errorf("read data: %w", err)
	}
	var variables map[string]any
	if variablesFile != "" {
		if err := readJSONFile(variablesFile, &variables); err != nil {
			return fmt.Errorf("read variables: %w", err)
		}
	}

	copts, err := cacheOptions(schemaFile)
	if err != nil {
		return err
	}
	c := cache.New(copts...)
	if _, err := c.WriteQuery(context.Background(), doc, operation, variables, data); err != nil {
		return fmt.Errorf("normalize: %w", err)
	}

	out, err := json.MarshalIndent(c.Store().Extract(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func cmdDiff(args []string) error {
	storeFile := ""
	queryFile := ""
	variablesFile := ""
	operation := ""
	schemaFile := ""

	fs := flag.NewFlagSet("diff", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&storeFile, "store", storeFile, "Store snapshot JSON")
	fs.StringVar(&queryFile, "query", queryFile, "Query document")
	fs.StringVar(&variablesFile, "variables", variablesFile, "JSON variables")
	fs.StringVar(&operation, "operation", operation, "Operation name")
	fs.StringVar(&schemaFile, "schema", schemaFile, "GraphQL SDL for fragment matching")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, diffUsage)
		return err
	}
	if storeFile == "" || queryFile == "" {
		fmt.Fprint(os.Stderr, diffUsage)
		return fmt.Errorf("-store and -query are required")
	}

	var snapshot cache.Snapshot
	if err := readJSONFile(storeFile, &snapshot); err != nil {
		return fmt.Errorf("read store: %w", err)
	}
	querySrc, err := os.ReadFile(queryFile)
	if err != nil {
		return fmt.Errorf("read query: %w", err)
	}
	doc, err := language.ParseQuery(string(querySrc))
	if err != nil {
		return fmt.Errorf("parse query: %w", err)
	}
	var variables map[string]any
	if variablesFile != "" {
		if err := readJSONFile(variablesFile, &variables); err != nil {
			return fmt.Errorf("read variables: %w", err)
		}
	}

	copts, err := cacheOptions(schemaFile)
	if err != nil {
		return err
	}
	store := cache.NewStore()
	if err := store.Restore(snapshot); err != nil {
		return fmt.Errorf("restore store: %w", err)
	}
	copts = append(copts, cache.WithStore(store))
	c := cache.New(copts...)

	result, err := c.DiffQuery(context.Background(), doc, operation, variables)
	if err != nil {
		return fmt.Errorf("diff: %w", err)
	}

	missing := make([]map[string]string, len(result.Missing))
	for i, m := range result.Missing {
		missing[i] = map[string]string{
			"id":        string(m.ID),
			"selection": language.RenderSelectionSet(m.Selection),
		}
	}
	out, err := json.MarshalIndent(map[string]any{
		"result":    result.Result,
		"isMissing": result.IsMissing,
		"missing":   missing,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
