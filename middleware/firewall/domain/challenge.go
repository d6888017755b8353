package domain

// MethodReverseFilterDummy é o único método de descramble suportado:
// inverter a string, remover os caracteres dummy, decodificar base64.
const MethodReverseFilterDummy = "reverse_filter_dummy"

// Challenge é o que o cliente recebe. O ID é o próprio puzzle embaralhado.
type Challenge struct {
	ID     string
	Broken string
	Method string
}

// ChallengeRecord é o que fica no store, indexado pelo ID.
type ChallengeRecord struct {
	Secret  []byte `json:"secret"`
	Method  string `json:"method"`
	Encoded string `json:"encoded"`
}
