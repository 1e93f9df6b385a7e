package bootstrap

import (
	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/numeric"
)

// WeightEntry is one preconfigured heavy-representative account and its
// known weight in raw units, used to seed the priority scheduler's
// account sets so bootstrap pulls from the accounts most likely to move
// the ledger forward first, before it has discovered weights on its own.
type WeightEntry struct {
	Account account.Address
	Weight  numeric.Uint128
}

// MaxBlocksBeta is the block count observed on the beta network at the
// time PreconfiguredWeightsBeta was captured; callers use it to size
// initial sync progress estimates before the real count is known.
const MaxBlocksBeta uint64 = 39428700

// PreconfiguredWeightsBeta mirrors the beta network's known heaviest
// representatives: accounts whose vote weight is large enough that
// prioritizing their chains early shortens the initial bootstrap walk.
// Decoded once at package init so a malformed literal fails loudly at
// startup rather than silently dropping an entry.
var PreconfiguredWeightsBeta = mustDecodeWeights([]rawWeight{
	{"nano_3faucet4t1nnru6yra9iioia76jddur6zqg6d3fp7h1soyyd8qhgx6tizrsy", "37999100000000000000000000000000000000"},
	{"nano_1betazh7m3c9gwcsy7w3rzynbqr9gomjwn3cp59xqky48we46eaqptbdskh4", "32981063781291209870813128842298384384"},
	{"nano_3immionim1ypak7xbxe53ozdgk8sarjsu1ae7xbrnc8z9ntb8upnq47eugkx", "30000000000000000000000000000000000000"},
	{"nano_3kedrin3axwpe6jcx5fi8bx6sgjcre7bj4su5gpmfyd4gaijn8ndcyzgxche", "24000100000000000000000000000000000000"},
	{"nano_1robotghjtaub18dmo1ihkzg9jjs53ukthxrpt5x7eie3pg7k4ahb5i1uw64", "22400000000000000000000000000000000000"},
	{"nano_1bnano1dnhc356frb1owg4mhi4r47j1i15yq8nuyyso8fg64ux9kdxzmae5g", "16000000000000000000000000000000000000"},
	{"nano_1kitteh45srbwthaxq11tj54awh1trwuyt6o56ya4ghqinqo3a3jisbjg4dd", "12800000000000000000000000000000000000"},
	{"nano_18cgy87ikc4ruyh5aqwqe6dybe9os1ip3681y9wukypz5j7kgh35uxftss1x", "12000000000000000000000000000000000000"},
	{"nano_1betag7az9wk6rbis38s1d35hdsycz1bi95xg4g4j148p6afjk7embcurda4", "5800000000000000000000000000000000001"},
	{"nano_1rickip5smeeztoxcg9jmjpsmyaeu7wkmkjssettss3firi3kmjq186uf3gb", "4000000000000000000000000000000000000"},
	{"nano_1defau1t9off1ine9rep99999999999999999999999999999999wgmuzxxy", "1009399201843717416503167458269866895"},
})

type rawWeight struct {
	account string
	weight  string
}

func mustDecodeWeights(raw []rawWeight) []WeightEntry {
	entries := make([]WeightEntry, 0, len(raw))
	for _, r := range raw {
		addr, err := account.Decode(r.account)
		if err != nil {
			panic("bootstrap: malformed preconfigured weight account: " + r.account)
		}
		weight, err := numeric.DecodeUint128Decimal(r.weight)
		if err != nil {
			panic("bootstrap: malformed preconfigured weight amount: " + r.weight)
		}
		entries = append(entries, WeightEntry{Account: addr, Weight: weight})
	}
	return entries
}

// SeedWeights primes an AccountSets with every entry in weights at
// priority_max, so the scheduler pulls the heaviest known
// representatives first instead of discovering them through ordinary
// priority_up traffic.
func (a *AccountSets) SeedWeights(weights []WeightEntry) {
	for _, w := range weights {
		a.PrioritySet(w.Account, a.cfg.PriorityMax)
	}
}
