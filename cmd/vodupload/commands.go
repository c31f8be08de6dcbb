package main

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forestrie/go-vodupload/credentials"
	"github.com/forestrie/go-vodupload/internal/config"
	"github.com/forestrie/go-vodupload/signer"
	"github.com/forestrie/go-vodupload/upload"
)

func newUploadCommand(a *app) *cobra.Command {
	var authFile string
	var concurrency int

	cmd := &cobra.Command{
		Use:   "upload [file]",
		Short: "Upload a media file and print its video id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configFile)
			if err != nil {
				return err
			}
			if concurrency > 0 {
				cfg.Transfer.Concurrency = concurrency
			}

			auth, err := loadAuth(cmd, authFile)
			if err != nil {
				return err
			}
			if auth.Expired(a.now()) {
				a.logger.Warn("upload credentials have expired", "expired_time", auth.ExpiredTime)
			}

			client := a.client(cfg)
			api := upload.NewAPI(cfg.UploadAPIConfig(), auth.Credentials(cfg.API.Region, cfg.API.Service),
				upload.WithHTTPClient(client),
				upload.WithAPILogger(a.logger),
			)
			storage := upload.NewStorage(client, a.logger)
			session := upload.NewSession(api, storage, cfg.UploadOptions(a.logger))

			vid, err := session.Upload(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("upload %s: %w", args[0], err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), vid)
			return nil
		},
	}

	cmd.Flags().StringVarP(&authFile, "auth", "a", "", "upload credentials JSON file (- for stdin)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parts in flight (overrides config)")
	_ = cmd.MarkFlagRequired("auth")

	return cmd
}

// newSignCommand prints what the signer computes for a request so it can
// be compared with what a server reports on a signature mismatch.
func newSignCommand(a *app) *cobra.Command {
	var (
		authFile string
		method   string
		body     string
		headers  []string
		exclude  []string
	)

	cmd := &cobra.Command{
		Use:   "sign [url]",
		Short: "Print the canonical request and signed headers for a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configFile)
			if err != nil {
				return err
			}
			auth, err := loadAuth(cmd, authFile)
			if err != nil {
				return err
			}
			creds := auth.Credentials(cfg.API.Region, cfg.API.Service)

			header, err := parseHeaders(headers)
			if err != nil {
				return err
			}
			req := signer.Request{
				Method: method,
				URL:    args[0],
				Header: header,
				Body:   []byte(body),
			}

			now := a.now()
			s := signer.NewSigner(signer.WithExcludedHeaders(exclude...))
			sc, err := s.Canonicalize(req, creds, signer.NewSigningTime(now))
			if err != nil {
				return err
			}
			signed, err := s.SignAt(req, creds, now)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Canonical request:\n%s\n\n", sc.CanonicalRequest())
			fmt.Fprintf(out, "String to sign:\n%s\n\n", sc.StringToSign())
			fmt.Fprintln(out, "Headers:")
			keys := make([]string, 0, len(signed))
			for k := range signed {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				for _, v := range signed[k] {
					fmt.Fprintf(out, "%s: %s\n", k, v)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&authFile, "auth", "a", "", "upload credentials JSON file (- for stdin)")
	cmd.Flags().StringVarP(&method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringVarP(&body, "data", "d", "", "request body")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra header as 'Name: value'")
	cmd.Flags().StringSliceVar(&exclude, "exclude-header", nil, "header names to leave out of the signature")
	_ = cmd.MarkFlagRequired("auth")

	return cmd
}

func loadAuth(cmd *cobra.Command, path string) (credentials.UploadAuth, error) {
	if path == "-" {
		return credentials.Read(cmd.InOrStdin())
	}
	return credentials.Load(path)
}

func (a *app) client(cfg config.Config) *http.Client {
	if a.httpClient != nil {
		return a.httpClient
	}
	return cfg.HTTPClient()
}

func parseHeaders(raw []string) (http.Header, error) {
	h := http.Header{}
	for _, line := range raw {
		name, value, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, errors.New("header must look like 'Name: value': " + line)
		}
		h.Add(name, strings.TrimSpace(value))
	}
	return h, nil
}
