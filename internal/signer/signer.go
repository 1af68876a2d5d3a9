// Package signer produces vendor-style authenticated request headers for the
// visual intelligence API. The scheme is an HMAC-SHA256 chain over a canonical
// request, comparable to AWS SigV4 but with the provider's own credential
// scope and a fixed host;x-date signed-header set.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	algorithm     = "HMAC-SHA256"
	signedHeaders = "host;x-date"

	// timeFormat is the compact UTC ISO form used both inside the signature
	// computation and as the literal X-Date header. The two must be
	// byte-identical or the provider rejects the request.
	timeFormat = "20060102T150405Z"
	dateFormat = "20060102"
)

// Request carries everything needed to sign one outbound call. Now is the
// signing timestamp; injecting it keeps the output deterministic for a given
// input set.
type Request struct {
	Method    string
	Host      string
	Path      string
	Action    string
	Version   string
	Region    string
	Service   string
	AccessKey string
	SecretKey string
	Body      []byte
	Now       time.Time
}

// Sign builds the authenticated header set for the request. Given identical
// inputs and timestamp the output is byte-identical.
func Sign(req Request) (http.Header, error) {
	if req.AccessKey == "" || req.SecretKey == "" {
		return nil, errors.New("signer: access key and secret key are required")
	}
	if req.Host == "" {
		return nil, errors.New("signer: host is required")
	}

	now := req.Now.UTC()
	timestamp := now.Format(timeFormat)
	dateStamp := now.Format(dateFormat)

	method := strings.ToUpper(req.Method)
	canonicalQuery := fmt.Sprintf("Action=%s&Version=%s", req.Action, req.Version)
	canonicalHeaders := fmt.Sprintf("host:%s\nx-date:%s\n", req.Host, timestamp)
	// An empty body hashes the empty string, never a literal "{}"; submit and
	// poll call sites must agree on this.
	payloadHash := hexSHA256(req.Body)

	canonicalRequest := strings.Join([]string{
		method,
		req.Path,
		canonicalQuery,
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	credentialScope := fmt.Sprintf("%s/%s/%s/request", dateStamp, req.Region, req.Service)
	stringToSign := strings.Join([]string{
		algorithm,
		timestamp,
		credentialScope,
		hexSHA256([]byte(canonicalRequest)),
	}, "\n")

	kDate := hmacSHA256([]byte(req.SecretKey), dateStamp)
	kRegion := hmacSHA256(kDate, req.Region)
	kService := hmacSHA256(kRegion, req.Service)
	kSigning := hmacSHA256(kService, "request")
	signature := hex.EncodeToString(hmacSHA256(kSigning, stringToSign))

	authorization := fmt.Sprintf(
		"%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm, req.AccessKey, credentialScope, signedHeaders, signature,
	)

	headers := http.Header{}
	headers.Set("Authorization", authorization)
	headers.Set("Content-Type", "application/json")
	headers.Set("Host", req.Host)
	headers.Set("X-Date", timestamp)
	return headers, nil
}

func hexSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
