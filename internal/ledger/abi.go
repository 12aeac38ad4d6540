package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract method and event names.
const (
	MethodUploadDocument   = "uploadDocument"
	MethodVerifyDocument   = "verifyDocument"
	MethodGetDocumentCount = "getDocumentCount"
	MethodGetDocument      = "getDocument"
	MethodIsVerifier       = "isVerifier"
	MethodAddVerifier      = "addVerifier"
	MethodRemoveVerifier   = "removeVerifier"
	MethodOwner            = "owner"

	EventDocumentUploaded = "DocumentUploaded"
	EventDocumentVerified = "DocumentVerified"
)

const registryABI = `[
 {"type":"function","name":"uploadDocument","stateMutability":"nonpayable",
  "inputs":[{"name":"_documentHash","type":"string"},{"name":"_documentType","type":"string"}],"outputs":[]},
 {"type":"function","name":"verifyDocument","stateMutability":"nonpayable",
  "inputs":[{"name":"_user","type":"address"},{"name":"_docIndex","type":"uint256"},{"name":"_status","type":"string"},{"name":"_notes","type":"string"}],"outputs":[]},
 {"type":"function","name":"getDocumentCount","stateMutability":"view",
  "inputs":[{"name":"_user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getDocument","stateMutability":"view",
  "inputs":[{"name":"_user","type":"address"},{"name":"_index","type":"uint256"}],
  "outputs":[{"name":"documentHash","type":"string"},{"name":"documentType","type":"string"},{"name":"status","type":"string"},{"name":"timestamp","type":"uint256"},{"name":"verifier","type":"address"},{"name":"notes","type":"string"}]},
 {"type":"function","name":"isVerifier","stateMutability":"view",
  "inputs":[{"name":"_address","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"addVerifier","stateMutability":"nonpayable",
  "inputs":[{"name":"_verifier","type":"address"}],"outputs":[]},
 {"type":"function","name":"removeVerifier","stateMutability":"nonpayable",
  "inputs":[{"name":"_verifier","type":"address"}],"outputs":[]},
 {"type":"function","name":"owner","stateMutability":"view",
  "inputs":[],"outputs":[{"name":"","type":"address"}]},
 {"type":"event","name":"DocumentUploaded","anonymous":false,
  "inputs":[{"name":"user","type":"address","indexed":true},{"name":"documentType","type":"string","indexed":false},{"name":"documentHash","type":"string","indexed":false}]},
 {"type":"event","name":"DocumentVerified","anonymous":false,
  "inputs":[{"name":"user","type":"address","indexed":true},{"name":"verifier","type":"address","indexed":true},{"name":"docIndex","type":"uint256","indexed":false},{"name":"status","type":"string","indexed":false}]},
 {"type":"event","name":"VerifierAdded","anonymous":false,
  "inputs":[{"name":"verifier","type":"address","indexed":true}]},
 {"type":"event","name":"VerifierRemoved","anonymous":false,
  "inputs":[{"name":"verifier","type":"address","indexed":true}]}
]`

// RegistryABI is the parsed document registry interface.
var RegistryABI = mustParseABI(registryABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("ledger: invalid registry ABI: " + err.Error())
	}
	return parsed
}
