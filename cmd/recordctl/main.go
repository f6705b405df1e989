package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	record "github.com/cloudxsgmbh/dynamodb-record-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type options struct {
	config   string
	limit    int
	segments int
	fields   string
	index    string
	timeout  time.Duration
}

func main() {
	opts, args := parseFlags()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if len(args) == 0 {
		log.Fatal().Msg("usage: recordctl [flags] get|put|delete|query|scan [json]")
	}

	cfg, err := record.LoadConfig(opts.config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	client, err := record.NewDynamoClient(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create client")
	}
	table, err := record.OpenTable(cfg, client)
	if err != nil {
		log.Fatal().Err(err).Str("schema", cfg.Schema).Msg("failed to open table")
	}
	if err := run(ctx, table, args, opts, os.Stdout); err != nil {
		log.Fatal().Err(err).Str("command", args[0]).Msg("command failed")
	}
}

func parseFlags() (options, []string) {
	var opts options
	flag.StringVar(&opts.config, "config", "", "config file (json, yaml or toml); RECORD_* env vars override")
	flag.IntVar(&opts.limit, "limit", 0, "page size for query and scan")
	flag.IntVar(&opts.segments, "segments", 0, "parallel scan segments")
	flag.StringVar(&opts.fields, "fields", "", "comma-separated projection")
	flag.StringVar(&opts.index, "index", "", "secondary index for query and scan")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall timeout")
	flag.Parse()
	return opts, flag.Args()
}

func run(ctx context.Context, table *record.Table, args []string, opts options, w io.Writer) error {
	params := &record.Params{Limit: int32(opts.limit), Index: opts.index}
	if opts.fields != "" {
		params.Fields = strings.Split(opts.fields, ",")
	}
	arg := func() (record.Item, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("%s needs a JSON argument", args[0])
		}
		return parseItem(args[1])
	}

	var out any
	switch args[0] {
	case "get":
		key, err := arg()
		if err != nil {
			return err
		}
		if out, err = table.Get(ctx, key, params); err != nil {
			return err
		}
	case "put":
		item, err := arg()
		if err != nil {
			return err
		}
		if _, err = table.Put(ctx, item, params); err != nil {
			return err
		}
		out = item
	case "delete":
		key, err := arg()
		if err != nil {
			return err
		}
		params.Return = "ALL_OLD"
		if out, err = table.Delete(ctx, key, params); err != nil {
			return err
		}
	case "query":
		key, err := arg()
		if err != nil {
			return err
		}
		res, err := table.Query(ctx, key, params)
		if err != nil {
			return err
		}
		out = res.Items
	case "scan":
		var res *record.Result
		var err error
		if opts.segments > 0 {
			res, err = table.ParallelScan(ctx, int32(opts.segments), params)
		} else {
			res, err = table.Scan(ctx, params)
		}
		if err != nil {
			return err
		}
		out = res.Items
	default:
		return fmt.Errorf("unknown command %q (supported: get, put, delete, query, scan)", args[0])
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// parseItem decodes a JSON object keeping numbers exact.
func parseItem(s string) (record.Item, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var item record.Item
	if err := dec.Decode(&item); err != nil {
		return nil, fmt.Errorf("invalid JSON argument: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("JSON argument must be an object")
	}
	return item, nil
}
