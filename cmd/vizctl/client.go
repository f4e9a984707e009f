package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"vizbridged/pkg/types"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

func getJSON(addr, path string, out any) error {
	resp, err := httpClient.Get(strings.TrimRight(addr, "/") + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
	var e types.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error != "" {
		return fmt.Errorf("%s (%d)", e.Error, e.Code)
	}
	return fmt.Errorf("unexpected status %d", resp.StatusCode)
}

func fnManifests(w io.Writer, addr string) error {
	var resp types.ManifestsResponse
	if err := getJSON(addr, "/manifests", &resp); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tVERSION")
	for _, m := range resp.Manifests {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.Name, m.Category, m.Version)
	}
	return tw.Flush()
}

func fnStatus(w io.Writer, addr string) error {
	var st types.StatusResponse
	if err := getJSON(addr, "/status", &st); err != nil {
		return err
	}
	fmt.Fprintf(w, "runtime: %s", st.RuntimeState)
	if st.PID > 0 {
		fmt.Fprintf(w, " (pid %d)", st.PID)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "transport: %s\n", st.Transport)
	fmt.Fprintf(w, "restarts: %d (consecutive failures: %d)\n", st.RestartsTotal, st.ConsecutiveFailures)
	if st.TerminalError != "" {
		fmt.Fprintf(w, "terminal error: %s\n", st.TerminalError)
	}
	fmt.Fprintf(w, "shader programs: %d (persistent compute: %v)\n", st.ShaderPrograms, st.PersistentCompute)
	fmt.Fprintf(w, "uptime: %ds\n", st.UptimeSeconds)
	if len(st.Instances) == 0 {
		fmt.Fprintln(w, "instances: none")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tMANIFEST\tFRAMES")
	for _, in := range st.Instances {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", in.InstanceID, in.ManifestID, in.FramesRendered)
	}
	return tw.Flush()
}

func fnReload(w io.Writer, addr, manifestID string) error {
	resp, err := httpClient.Post(strings.TrimRight(addr, "/")+"/reload/"+manifestID, "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	fmt.Fprintf(w, "reloaded %s\n", manifestID)
	return nil
}
