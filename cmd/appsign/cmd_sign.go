package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fwtools/appsign/pkg/blob"
	"github.com/fwtools/appsign/pkg/header"
	"github.com/fwtools/appsign/pkg/pipeline"
	"github.com/fwtools/appsign/pkg/signing"
)

var (
	signStartAddr  string
	signImageType  string
	signKeyPath    string
	signKeymatPath string
	signGitToken   string
	signSWVersion  string
	signHWVersion  string
	signSign       bool
	signEncrypt    bool
	signEmbedGit   bool
)

var signCmd = &cobra.Command{
	Use:   "sign [input.bin] [output.bin]",
	Short: "Fill and seal the application header of a firmware image",
	Long: `Copies the input image and runs the full header pipeline on the copy:
static fields, padding, image size and CRC, optional signature, optional
encryption, header CRC. The input file is never modified.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, p := range args {
			if !strings.HasSuffix(p, ".bin") {
				return fmt.Errorf("%s: expected a .bin file", p)
			}
		}

		var cfg pipeline.Config
		switch strings.ToLower(signImageType) {
		case "application":
			cfg.ImageType = header.ImageTypeApplication
		case "custom":
			cfg.ImageType = header.ImageTypeCustom
		default:
			return fmt.Errorf("--type must be one of: application, custom")
		}

		addr, err := parseNumber(signStartAddr)
		if err != nil {
			return fmt.Errorf("invalid start address")
		}
		cfg.StartAddr = addr

		if signSWVersion != "" {
			v, err := parseNumber(signSWVersion)
			if err != nil {
				return fmt.Errorf("invalid software version")
			}
			cfg.SoftwareVersion = &v
		}
		if signHWVersion != "" {
			v, err := parseNumber(signHWVersion)
			if err != nil {
				return fmt.Errorf("invalid hardware version")
			}
			cfg.HardwareVersion = &v
		}

		if signSign {
			if signKeyPath == "" {
				return pipeline.ErrMissingSigningKey
			}
			key, err := signing.LoadPrivateKey(signKeyPath)
			if err != nil {
				return err
			}
			cfg.Sign = true
			cfg.Key = key
		}

		if signEncrypt {
			cfg.Encrypt = true
			cfg.Secrets = keyMaterialProvider(signKeymatPath)
		}

		if signEmbedGit {
			token := signGitToken
			if token == "" {
				token, err = gitCommitToken()
				if err != nil {
					return err
				}
			}
			cfg.GitSHA = token
		}

		b, err := blob.Load(args[0])
		if err != nil {
			return err
		}
		if err := pipeline.Run(b, cfg); err != nil {
			return err
		}
		return b.Save(args[1])
	},
}
