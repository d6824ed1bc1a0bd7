package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hunght/gograb/internal/domain"
	"github.com/spf13/cobra"
)

// apiClient talks to a running gograb daemon over its HTTP API.
type apiClient struct {
	base string
	http *http.Client
}

func newClient() *apiClient {
	return &apiClient{
		base: serverURL,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) do(method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is the daemon running at %s? %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("request failed: %s", resp.Status)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

var (
	addFormat       string
	addOutputFormat string
	addOutputPath   string
	addTemplate     string
	listStatus      string
	listLimit       int
)

var addCmd = &cobra.Command{
	Use:   "add URL...",
	Short: "Enqueue one or more downloads",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			IDs []string `json:"ids"`
		}
		err := newClient().do(http.MethodPost, "/api/jobs", map[string]any{
			"urls":              args,
			"format":            addFormat,
			"output_format":     addOutputFormat,
			"output_path":       addOutputPath,
			"filename_template": addTemplate,
		}, &resp)
		if err != nil {
			return err
		}

		for _, id := range resp.IDs {
			fmt.Println(id)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List download jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/api/jobs"
		q := url.Values{}
		if listStatus != "" {
			q.Set("status", listStatus)
		}
		if listLimit > 0 {
			q.Set("limit", fmt.Sprintf("%d", listLimit))
		}
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		var jobs []*domain.DownloadJob
		if err := newClient().do(http.MethodGet, path, nil, &jobs); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tPROGRESS\tSIZE\tRETRIES\tURL")
		for _, j := range jobs {
			size := ""
			if j.FileSizeBytes > 0 {
				size = humanize.Bytes(uint64(j.FileSizeBytes))
			}
			fmt.Fprintf(w, "%s\t%s\t%.1f%%\t%s\t%d\t%s\n",
				j.ID, j.Status, j.ProgressPercent, size, j.RetryCount, j.SourceURL)
		}
		return w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		var stats domain.QueueStats
		if err := newClient().do(http.MethodGet, "/api/stats", nil, &stats); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "total\t%d\n", stats.Total)
		fmt.Fprintf(w, "pending\t%d\n", stats.Pending)
		fmt.Fprintf(w, "queued\t%d\n", stats.Queued)
		fmt.Fprintf(w, "downloading\t%d\n", stats.Downloading)
		fmt.Fprintf(w, "paused\t%d\n", stats.Paused)
		fmt.Fprintf(w, "completed\t%d\n", stats.Completed)
		fmt.Fprintf(w, "failed\t%d\n", stats.Failed)
		fmt.Fprintf(w, "cancelled\t%d\n", stats.Cancelled)
		fmt.Fprintf(w, "on disk\t%s\n", humanize.Bytes(uint64(stats.TotalBytesOnDisk)))
		return w.Flush()
	},
}

func jobActionCmd(use, short, action string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().do(http.MethodPost, "/api/jobs/"+args[0]+"/"+action, nil, nil)
		},
	}
}

var cancelCmd = jobActionCmd("cancel", "Cancel a job", "cancel")
var pauseCmd = jobActionCmd("pause", "Pause an active job", "pause")
var resumeCmd = jobActionCmd("resume", "Resume a paused job", "resume")
var retryCmd = jobActionCmd("retry", "Retry a failed job", "retry")

var rmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a job record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().do(http.MethodDelete, "/api/jobs/"+args[0], nil, nil)
	},
}

func init() {
	addCmd.Flags().StringVarP(&addFormat, "format", "f", "", "yt-dlp format selector")
	addCmd.Flags().StringVar(&addOutputFormat, "output-format", "", "output container or audio format (mp4, mkv, mp3, ...)")
	addCmd.Flags().StringVarP(&addOutputPath, "output-path", "o", "", "override the configured output directory")
	addCmd.Flags().StringVar(&addTemplate, "template", "", "override the output filename template")

	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum rows to return")
}
