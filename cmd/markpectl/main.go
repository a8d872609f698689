package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lyssadev/MarkPEWeb/core/infra/config"
	"github.com/lyssadev/MarkPEWeb/core/keys"
)

const defaultGateway = "http://localhost:8080"

type flagSet struct {
	*flag.FlagSet
	gateway *string
	apiKey  *string
}

func newFlagSet(name string) *flagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	gateway := fs.String("gateway", envOr("MARKPE_GATEWAY", defaultGateway), "gateway base url")
	apiKey := fs.String("api-key", envOr("MARKPE_API_KEY", ""), "api key")
	return &flagSet{FlagSet: fs, gateway: gateway, apiKey: apiKey}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "search":
		runSearchCmd(args)
	case "fetch":
		runFetchCmd(args)
	case "keys":
		runKeysCmd(args)
	default:
		usage()
		os.Exit(1)
	}
}

func runSearchCmd(args []string) {
	fs := newFlagSet("search")
	searchType := fs.String("type", "name", "search type (name, skin, addon, texture, mashup, persona, capes, hidden, newest)")
	limit := fs.Int("limit", 20, "max results")
	_ = fs.Parse(args)
	if *searchType == "name" && fs.NArg() < 1 {
		fail("search query required")
	}
	query := strings.Join(fs.Args(), " ")

	params := url.Values{}
	params.Set("q", query)
	params.Set("type", *searchType)
	params.Set("limit", strconv.Itoa(*limit))

	resp := doRequest(fs, http.MethodGet, "/api/v1/search?"+params.Encode(), nil)
	defer resp.Body.Close()

	var body struct {
		Count int `json:"count"`
		Items []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
			Kind  string `json:"kind"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		fail(fmt.Sprintf("decode response: %v", err))
	}
	for _, item := range body.Items {
		fmt.Printf("%s  %-14s %s\n", item.ID, item.Kind, item.Title)
	}
	fmt.Printf("%d result(s)\n", body.Count)
}

func runFetchCmd(args []string) {
	fs := newFlagSet("fetch")
	raw := fs.Bool("raw", false, "skip processing, fetch the first raw asset")
	out := fs.String("out", ".", "output directory")
	_ = fs.Parse(args)
	if fs.NArg() < 1 {
		fail("item id or storefront url required")
	}
	id := fs.Arg(0)

	payload, _ := json.Marshal(map[string]any{"id": id, "raw": *raw})
	resp := doRequest(fs, http.MethodPost, "/api/v1/download", payload)
	defer resp.Body.Close()

	filename := filenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if filename == "" {
		filename = "content.zip"
	}
	target := filepath.Join(*out, filename)
	file, err := os.Create(target)
	if err != nil {
		fail(fmt.Sprintf("create %s: %v", target, err))
	}
	defer file.Close()
	written, err := io.Copy(file, resp.Body)
	if err != nil {
		fail(fmt.Sprintf("save %s: %v", target, err))
	}

	if title := resp.Header.Get("X-Content-Title"); title != "" {
		fmt.Printf("title: %s\n", title)
	}
	if types := resp.Header.Get("X-Content-Types"); types != "" {
		fmt.Printf("types: %s\n", types)
	}
	fmt.Printf("saved %s (%d bytes)\n", target, written)
}

func runKeysCmd(args []string) {
	if len(args) < 1 || args[0] != "update" {
		usage()
		os.Exit(1)
	}
	fs := flag.NewFlagSet("keys update", flag.ExitOnError)
	force := fs.Bool("force", false, "rewrite the key file even when unchanged")
	_ = fs.Parse(args[1:])

	cfg := config.Load()
	store := config.NewSettingsStore(cfg.SettingsPath)
	updater := keys.NewUpdater(store, cfg.KeyFilePath, cfg.ListFilePath)
	added, updated, err := updater.UpdateKeys(context.Background(), *force)
	if err != nil {
		fail(fmt.Sprintf("key update failed: %v", err))
	}
	if updated {
		fmt.Printf("key file updated, %d new line(s)\n", added)
	} else {
		fmt.Println("key file already up to date")
	}
	fresh, err := updater.UpdateList(context.Background(), *force)
	if err != nil {
		fail(fmt.Sprintf("list update failed: %v", err))
	}
	if len(fresh) > 0 {
		fmt.Printf("content list updated, %d new entry(ies)\n", len(fresh))
	} else {
		fmt.Println("content list already up to date")
	}
}

func doRequest(fs *flagSet, method, path string, payload []byte) *http.Response {
	var body io.Reader
	if payload != nil {
		body = strings.NewReader(string(payload))
	}
	req, err := http.NewRequest(method, strings.TrimRight(*fs.gateway, "/")+path, body)
	if err != nil {
		fail(err.Error())
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if *fs.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*fs.apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fail(err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		fail(fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
	}
	return resp
}

func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(header); err == nil {
		return params["filename"]
	}
	return ""
}

func usage() {
	fmt.Print(`markpectl - marketplace content CLI

Usage:
  markpectl search <query> [--type name] [--limit 20]
  markpectl fetch <id|url> [--raw] [--out dir]
  markpectl keys update [--force]

Global flags:
  --gateway   Gateway base URL (default from MARKPE_GATEWAY)
  --api-key   API key (default from MARKPE_API_KEY)
`)
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func envOr(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
