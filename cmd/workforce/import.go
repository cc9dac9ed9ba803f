package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"axiapac.com/workforce/attendance/app"
	"axiapac.com/workforce/attendance/importer"
	"axiapac.com/workforce/infrastructure/filesystem"
	"github.com/spf13/cobra"
)

var importDryRun bool

var importCmd = &cobra.Command{
	Use:   "import <company> <file.csv|s3://bucket/key|s3://bucket/prefix/>",
	Short: "Import historical clock events from a CSV export",
	Long: `Reads employee_no,timestamp,type[,site,project,latitude,longitude,address]
rows and replays them through the attendance rules. Importing the same file
twice skips the rows already loaded. An S3 URI ending in / imports every .csv
object under that prefix in key order.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sources, err := readSources(ctx, args[1])
		if err != nil {
			return err
		}

		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		company, err := a.DM.Company(ctx, args[0])
		if err != nil {
			return err
		}

		for _, src := range sources {
			if len(sources) > 1 {
				fmt.Printf("== %s\n", src.name)
			}
			if importDryRun {
				if err := preview(src.data, company.Location()); err != nil {
					return fmt.Errorf("%s: %w", src.name, err)
				}
				continue
			}

			result, err := importer.Import(ctx, a.Processor, company.Code, bytes.NewReader(src.data), company.Location())
			if err != nil {
				return fmt.Errorf("%s: %w", src.name, err)
			}
			out, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(out))
		}
		return nil
	},
}

func preview(data []byte, loc *time.Location) error {
	records, err := importer.ParseClockCSV(bytes.NewReader(data), loc)
	if err != nil {
		return err
	}
	groups := importer.GroupRecords(records, loc)
	for _, g := range groups {
		fmt.Printf("%s\t%s\t%s - %s\t%d clocks\n", g.EmployeeNo, g.Date,
			g.From.In(loc).Format("15:04"), g.To.In(loc).Format("15:04"), len(g.Records))
	}
	fmt.Printf("\n%d records in %d employee days\n", len(records), len(groups))
	return nil
}

type source struct {
	name string
	data []byte
}

func readSources(ctx context.Context, uri string) ([]source, error) {
	if !strings.HasPrefix(uri, "s3://") {
		f, err := os.Open(uri)
		if err != nil {
			return nil, fmt.Errorf("failed to open file %s: %w", uri, err)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}
		return []source{{name: uri, data: data}}, nil
	}

	bucketName, key, err := filesystem.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	bucket, err := filesystem.ConnectBucket(ctx, bucketName)
	if err != nil {
		return nil, err
	}

	keys := []string{key}
	if strings.HasSuffix(key, "/") {
		all, err := bucket.ListFiles(ctx, key)
		if err != nil {
			return nil, err
		}
		if keys = csvKeys(all); len(keys) == 0 {
			return nil, fmt.Errorf("no .csv objects under %s", uri)
		}
	}

	sources := make([]source, 0, len(keys))
	for _, k := range keys {
		var buf bytes.Buffer
		if err := bucket.ReadFile(ctx, k, &buf); err != nil {
			return nil, err
		}
		sources = append(sources, source{name: "s3://" + bucketName + "/" + k, data: buf.Bytes()})
	}
	return sources, nil
}

// csvKeys keeps the .csv objects in key order, so dated exports replay oldest first.
func csvKeys(keys []string) []string {
	var out []string
	for _, k := range keys {
		if strings.EqualFold(path.Ext(k), ".csv") {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "parse and summarise without writing")
	rootCmd.AddCommand(importCmd)
}
