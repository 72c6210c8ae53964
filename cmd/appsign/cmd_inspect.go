package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fwtools/appsign/pkg/blob"
	"github.com/fwtools/appsign/pkg/header"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [image.bin]",
	Short: "Decode and print the application header of an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := blob.Load(args[0])
		if err != nil {
			return err
		}
		h, err := header.Decode(b)
		if err != nil {
			return err
		}

		fmt.Printf("header_crc8:           0x%02x\n", h.HeaderCRC)
		fmt.Printf("header_version:        %d\n", h.Version)
		fmt.Printf("image_type:            %s\n", imageTypeName(h.ImageType))
		fmt.Printf("software_version:      0x%08x\n", h.SoftwareVersion)
		fmt.Printf("hardware_version:      0x%08x\n", h.HardwareVersion)
		fmt.Printf("image_size:            %d bytes\n", h.ImageSize)
		fmt.Printf("image_start_addr:      0x%08x\n", h.ImageStartAddr)
		fmt.Printf("image_crc32:           0x%08x\n", h.ImageCRC)
		fmt.Printf("encryption_type:       %s\n", encryptionName(h.EncryptionType))
		fmt.Printf("signature_type:        %s\n", signatureName(h.SignatureType))
		if h.SignatureType != header.SignatureNone {
			fmt.Printf("signature:             %x\n", h.Signature)
			fmt.Printf("image_hash:            %x\n", h.ImageHash)
		}
		if sha := bytes.TrimRight(h.GitSHA[:], "\x00"); len(sha) > 0 {
			fmt.Printf("git_sha:               %s\n", sha)
		}
		if h.EncryptionType == header.EncryptionAESCTR {
			fmt.Printf("encrypted_image_crc32: 0x%08x\n", h.EncryptedImageCRC)
		}
		return nil
	},
}

func imageTypeName(t uint8) string {
	switch t {
	case header.ImageTypeApplication:
		return "application"
	case header.ImageTypeCustom:
		return "custom"
	default:
		return fmt.Sprintf("unknown (%d)", t)
	}
}

func encryptionName(t uint8) string {
	switch t {
	case header.EncryptionNone:
		return "none"
	case header.EncryptionAESCTR:
		return "AES-CTR"
	default:
		return fmt.Sprintf("unknown (%d)", t)
	}
}

func signatureName(t uint8) string {
	switch t {
	case header.SignatureNone:
		return "none"
	case header.SignatureECDSA:
		return "ECDSA"
	default:
		return fmt.Sprintf("unknown (%d)", t)
	}
}
