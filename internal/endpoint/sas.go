package endpoint

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultSASExpiry is the lifetime of generated SAS tokens
const DefaultSASExpiry = time.Hour

// GenerateSASToken generates a Shared Access Signature token for uri
func GenerateSASToken(uri, keyName, key string, expiry time.Duration) (string, error) {
	uri = strings.TrimSuffix(uri, "/")
	if expiry <= 0 {
		expiry = DefaultSASExpiry
	}
	expiryTimestamp := time.Now().Add(expiry).Unix()

	// string to sign: <url>\n<expiry>
	stringToSign := fmt.Sprintf("%s\n%d", url.QueryEscape(uri), expiryTimestamp)

	// the key signs as its literal bytes, not base64-decoded
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("endpoint: SAS key is required")
	}

	h := hmac.New(sha256.New, []byte(key))
	h.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(h.Sum(nil))

	return fmt.Sprintf("SharedAccessSignature sr=%s&sig=%s&se=%d&skn=%s",
		url.QueryEscape(uri),
		url.QueryEscape(signature),
		expiryTimestamp,
		url.QueryEscape(keyName),
	), nil
}

// Namespace returns the fully qualified relay host for namespace. Names
// without a dot get the public Azure suffix.
func Namespace(namespace string) string {
	if strings.Contains(namespace, ".") {
		return namespace
	}
	return namespace + ".servicebus.windows.net"
}

// HybridConnectionToken signs the hybrid connection URI. The key policy decides
// whether the token may send, listen or both.
func HybridConnectionToken(namespace, hybridConnection, keyName, key string, expiry time.Duration) (string, error) {
	uri := fmt.Sprintf("https://%s/%s", Namespace(namespace), hybridConnection)
	return GenerateSASToken(uri, keyName, key, expiry)
}

// HybridConnectionURL builds the sender URL of a hybrid connection:
// wss://<namespace>/$hc/<name>?sb-hc-action=connect&sb-hc-token=<token>
func HybridConnectionURL(namespace, hybridConnection, token string) string {
	u := url.URL{
		Scheme: "wss",
		Host:   Namespace(namespace),
		Path:   "/$hc/" + hybridConnection,
	}
	q := url.Values{}
	q.Set("sb-hc-action", "connect")
	if token != "" {
		q.Set("sb-hc-token", token)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
