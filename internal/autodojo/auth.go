package autodojo

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"autodojo/internal/objects"
)

// AuthPolicy решает, допускается ли запрос; ошибка превращается в 401.
type AuthPolicy func(ctx context.Context, req Request) error

// ErrUnauthorized — ответ на отказ политики.
var ErrUnauthorized = &objects.APIError{Status: http.StatusUnauthorized, Message: "Unauthorized"}

// BearerToken пропускает запросы с заголовком "Authorization: Bearer <token>".
func BearerToken(token string) AuthPolicy {
	want := []byte(token)
	return func(_ context.Context, req Request) error {
		got, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), want) != 1 {
			return ErrUnauthorized
		}
		return nil
	}
}

// Guard оборачивает обработчик проверкой политики.
func Guard(policy AuthPolicy, h Handler) Handler {
	return func(ctx context.Context, req Request) (Response, error) {
		if err := policy(ctx, req); err != nil {
			return Response{}, ErrUnauthorized
		}
		return h(ctx, req)
	}
}
