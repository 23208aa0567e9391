package objects

import (
	"fmt"
	"net/http"

	"autodojo/internal/model"
	"autodojo/internal/schema"
)

// APIError — ошибка запроса, которую HTTP-слой отдаёт как {"api_error": Message}.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

// Body — тело ответа.
func (e *APIError) Body() schema.ErrorBody {
	return schema.ErrorBody{APIError: e.Message}
}

// InstanceNotFound: "Requested Book object does not exist".
func InstanceNotFound(modelName string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("Requested %s object does not exist", modelName),
	}
}

// RelatedNotFound: "Publisher referenced by 'publisher_id' does not exist".
// В сообщении ключ всегда с "_id", как бы ни было объявлено поле; у списков — имя поля.
func RelatedNotFound(f *model.Field, status int) *APIError {
	return &APIError{
		Status:  status,
		Message: fmt.Sprintf("%s referenced by '%s' does not exist", f.Related.Name, f.Key()),
	}
}
