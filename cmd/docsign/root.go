package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"docsign/internal/config"
	"docsign/internal/domain"
	cryptoinfra "docsign/internal/infra/crypto"
	"docsign/internal/usecase"

	"github.com/spf13/cobra"
)

// errCheckFailed makes the process exit non-zero after the report was printed.
var errCheckFailed = errors.New("check failed")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "docsign",
		Short:         "Offline document signing and certificate tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newHashCmd(),
		newHashRefCmd(),
		newCertCmd(),
		newSignCmd(),
		newVerifyCmd(),
		newTrustCmd(),
	)
	return root
}

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <file>",
		Short: "Print the SHA-512 hash of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cryptoinfra.HashDocument(content))
			return nil
		},
	}
}

func newHashRefCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-ref <document-type> <document-id> <tenant-id>",
		Short: "Print the reference hash used by attestation signatures",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), cryptoinfra.HashDocumentReference(args[0], args[1], args[2]))
			return nil
		},
	}
}

func newCertCmd() *cobra.Command {
	certCmd := &cobra.Command{
		Use:   "cert",
		Short: "Inspect and validate X.509 certificates",
	}

	inspect := &cobra.Command{
		Use:   "inspect <pem-file>",
		Short: "Print the parsed certificate fields as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pemData, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			info, err := cryptoinfra.ParseCertificatePEM(pemData)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}

	var (
		requireOrg   bool
		requireEmail bool
		signing      bool
		minDays      int
	)
	validate := &cobra.Command{
		Use:   "validate <pem-file>",
		Short: "Validate a certificate and print errors and warnings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pemData, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			opts := domain.ValidationOptions{
				RequireOrgName:  requireOrg,
				RequireEmail:    requireEmail,
				MinValidityDays: minDays,
			}
			if signing {
				opts.AllowedKeyUsages = usecase.SigningKeyUsages
			}
			manager := usecase.NewCertificateManager(nil, &cryptoinfra.Service{}, nil, nil)
			result := manager.ValidateCertificate(pemData, opts)
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.IsValid {
				return errCheckFailed
			}
			return nil
		},
	}
	validate.Flags().BoolVar(&requireOrg, "require-org", false, "require a subject organization")
	validate.Flags().BoolVar(&requireEmail, "require-email", false, "require a subject email address")
	validate.Flags().BoolVar(&signing, "signing", false, "require digitalSignature or nonRepudiation key usage")
	validate.Flags().IntVar(&minDays, "min-days", usecase.DefaultMinValidityDays, "warn when fewer days of validity remain")

	certCmd.AddCommand(inspect, validate)
	return certCmd
}

func newSignCmd() *cobra.Command {
	var (
		keyPath  string
		certPath string
		password string
	)
	cmd := &cobra.Command{
		Use:   "sign <file>",
		Short: "Sign a document hash with an RSA private key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			keyPEM, err := os.ReadFile(keyPath)
			if err != nil {
				return fmt.Errorf("read key: %w", err)
			}
			var certPublicKey string
			if certPath != "" {
				certPEM, err := os.ReadFile(certPath)
				if err != nil {
					return fmt.Errorf("read certificate: %w", err)
				}
				info, err := cryptoinfra.ParseCertificatePEM(certPEM)
				if err != nil {
					return err
				}
				certPublicKey = info.PublicKeyPEM
			}
			svc := &cryptoinfra.Service{}
			hash := svc.HashDocument(content)
			signature, err := svc.SignDocumentHash(keyPEM, []byte(password), hash, certPublicKey)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"document_hash":       hash,
				"signature_algorithm": "RSA-SHA512",
				"signature":           signature,
			})
		},
	}
	cmd.Flags().StringVar(&keyPath, "key", "", "PEM private key (PKCS#1, PKCS#8 or encrypted)")
	cmd.Flags().StringVar(&certPath, "cert", "", "signer certificate the key must match")
	cmd.Flags().StringVar(&password, "password", "", "passphrase for an encrypted key")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var (
		certPath  string
		signature string
	)
	cmd := &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify an RSA-SHA512 signature against a certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			certPEM, err := os.ReadFile(certPath)
			if err != nil {
				return fmt.Errorf("read certificate: %w", err)
			}
			info, err := cryptoinfra.ParseCertificatePEM(certPEM)
			if err != nil {
				return err
			}
			svc := &cryptoinfra.Service{}
			hash := svc.HashDocument(content)
			verifyErr := svc.VerifyDocumentHash(info.PublicKeyPEM, hash, strings.TrimSpace(signature))
			report := map[string]any{
				"document_hash": hash,
				"fingerprint":   info.Fingerprint,
				"valid":         verifyErr == nil,
			}
			if verifyErr != nil {
				report["error"] = verifyErr.Error()
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if verifyErr != nil {
				return errCheckFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&certPath, "cert", "", "signer certificate PEM")
	cmd.Flags().StringVar(&signature, "signature", "", "base64 signature value")
	_ = cmd.MarkFlagRequired("cert")
	_ = cmd.MarkFlagRequired("signature")
	return cmd
}

func newTrustCmd() *cobra.Command {
	trustCmd := &cobra.Command{
		Use:   "trust",
		Short: "Check certificates against a trusted fingerprint list",
	}
	var trusted string
	check := &cobra.Command{
		Use:   "check <pem-file>",
		Short: "Report whether a certificate's fingerprint is a trusted anchor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pemData, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			info, err := cryptoinfra.ParseCertificatePEM(pemData)
			if err != nil {
				return err
			}
			if trusted == "" {
				trusted = os.Getenv("TRUSTED_CERT_FINGERPRINTS")
			}
			anchors := config.Config{TrustedCertFingerprints: trusted}.TrustedFingerprints()
			verifier := usecase.NewVerificationService(nil, nil, &cryptoinfra.Service{}, anchors, nil, nil)
			result := verifier.VerifyCertificateChain(info.Fingerprint)
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.IsValid {
				return errCheckFailed
			}
			return nil
		},
	}
	check.Flags().StringVar(&trusted, "trusted", "", "comma-separated trusted fingerprints (default $TRUSTED_CERT_FINGERPRINTS)")
	trustCmd.AddCommand(check)
	return trustCmd
}

// readInput reads a file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
