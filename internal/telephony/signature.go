package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"voice-bridge/pkg/logger"
)

const signatureHeader = "X-Twilio-Signature"

// ComputeSignature implements Twilio's request signature: HMAC-SHA1 over the
// full URL followed by each POST parameter name and value, sorted by name.
func ComputeSignature(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		vals := append([]string(nil), params[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			b.WriteString(k)
			b.WriteString(v)
		}
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func ValidSignature(authToken, fullURL string, params url.Values, signature string) bool {
	if signature == "" {
		return false
	}
	want := ComputeSignature(authToken, fullURL, params)
	return hmac.Equal([]byte(want), []byte(signature))
}

// RequireTwilioSignature rejects webhook requests not signed with authToken.
// The signed URL is rebuilt from publicBaseURL since the process usually
// sits behind a proxy that rewrites scheme and host.
func RequireTwilioSignature(authToken, publicBaseURL string) gin.HandlerFunc {
	base := strings.TrimRight(publicBaseURL, "/")
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
			return
		}
		full := base + c.Request.URL.RequestURI()
		if !ValidSignature(authToken, full, c.Request.PostForm, c.GetHeader(signatureHeader)) {
			logger.FromGin(c).Warn("twilio signature rejected", "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
		c.Next()
	}
}
