package main

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/fwtools/appsign/pkg/blob"
	"github.com/fwtools/appsign/pkg/fwcrypt"
	"github.com/fwtools/appsign/pkg/pipeline"
	"github.com/fwtools/appsign/pkg/signing"
)

var (
	verifyPubKeyPath string
	verifyKeymatPath string
)

var verifyCmd = &cobra.Command{
	Use:   "verify [image.bin]",
	Short: "Re-check a sealed image like a bootloader would",
	Long: `Recomputes the header CRC, image size, payload CRCs, digest and
signature of a sealed image and reports every field that does not match.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := blob.Load(args[0])
		if err != nil {
			return err
		}

		var pub *ecdsa.PublicKey
		if verifyPubKeyPath != "" {
			pub, err = signing.LoadPublicKey(verifyPubKeyPath)
			if err != nil {
				return err
			}
		}

		if err := pipeline.Verify(b, pub, keyMaterialProvider(verifyKeymatPath)); err != nil {
			return err
		}
		fmt.Printf("OK: %s verifies\n", args[0])
		return nil
	},
}

// keyMaterialProvider picks the encryption key material source: an explicit
// file, the XDG config file if one exists, and last the built-in
// compatibility material.
func keyMaterialProvider(path string) fwcrypt.Provider {
	if path != "" {
		return fwcrypt.FileProvider{Path: path}
	}
	if p, err := fwcrypt.DefaultConfigPath(); err == nil {
		glog.Infof("Using key material from %s", p)
		return fwcrypt.FileProvider{Path: p}
	}
	return fwcrypt.Static{M: fwcrypt.DefaultMaterial()}
}
