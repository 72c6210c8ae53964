package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var rootCmd = &cobra.Command{
	Use:   "appsign",
	Short: "appsign fills and seals firmware application headers",
	Long: `Assembles the application header of a firmware image: pads the payload,
computes the image checksums, optionally signs (deterministic ECDSA) and
encrypts (AES-CTR) the payload, and seals the header with its checksum.

The input image must already carry a build-stamped header of a supported
version; appsign never mutates the input file, all work happens on the output
copy.`,
	SilenceUsage: true,
}

func main() {
	signCmd.Flags().StringVarP(&signStartAddr, "addr", "a", "0x0", "Image start (load) address")
	signCmd.Flags().StringVarP(&signImageType, "type", "t", "application", "Image type (one of 'application', 'custom')")
	signCmd.Flags().BoolVarP(&signSign, "sign", "s", false, "Sign the payload (deterministic ECDSA)")
	signCmd.Flags().StringVarP(&signKeyPath, "private-key", "k", "", "PEM EC private key used for signing")
	signCmd.Flags().BoolVarP(&signEncrypt, "encrypt", "c", false, "Encrypt the payload (AES-CTR)")
	signCmd.Flags().StringVar(&signKeymatPath, "key-material", "", "YAML key material for encryption (default: XDG config, then built-in compatibility material)")
	signCmd.Flags().BoolVarP(&signEmbedGit, "git-sha", "g", false, "Embed the current git commit into the header")
	signCmd.Flags().StringVar(&signGitToken, "git-sha-value", "", "Commit token to embed instead of invoking git")
	signCmd.Flags().StringVar(&signSWVersion, "sw-version", "", "Override the software_version header field")
	signCmd.Flags().StringVar(&signHWVersion, "hw-version", "", "Override the hardware_version header field")
	verifyCmd.Flags().StringVarP(&verifyPubKeyPath, "public-key", "p", "", "PEM EC public key used to verify the signature")
	verifyCmd.Flags().StringVar(&verifyKeymatPath, "key-material", "", "YAML key material for decryption")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.Execute()
}

func init() {
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
}

func parseNumber(s string) (uint32, error) {
	var err error
	var res uint64
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		res, err = strconv.ParseUint(s[2:], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid number")
		}
	} else {
		res, err = strconv.ParseUint(s, 10, 32)
		if err != nil {
			res, err = strconv.ParseUint(s, 16, 32)
			if err != nil {
				return 0, fmt.Errorf("invalid number")
			}
		}
	}
	return uint32(res), nil
}
