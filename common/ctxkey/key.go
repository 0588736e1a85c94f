package ctxkey

const (
	KeyRequestBody             = "key_request_body"
	ClientRequestPayloadLogged = "client_request_payload_logged"
	RequestModel               = "request_model"
	MappedModel                = "mapped_model"
	AccountEmail               = "account_email"
	RelayMode                  = "relay_mode"
)
