package discord

import "math/rand/v2"

var (
	rewardPhrases = []string{
		"¡La entropía te favorece! Has sido bendecido con",
		"El caos reconoce tu valor. Te otorga",
		"¡Las fuerzas del desorden te premian con",
		"¡La manifestación del caos toma forma de",
	}
	errorPhrases = []string{
		"El vacío ha consumido tu petición...",
		"Las fuerzas del caos rechazan tu intento...",
		"El cosmos se niega a cooperar con tus designios...",
		"La entropía ha devorado tu solicitud...",
	}
	balancePhrases = []string{
		"Las fuerzas del caos te susurran que posees",
		"Tu poder en el vacío se cuantifica en",
		"El cosmos ha contabilizado tu influencia:",
		"Tu dominio sobre el caos se mide en",
	}
)

const (
	msgNoPermission     = "No tienes permisos para usar este comando."
	msgMissingArguments = "¡Ah, mortal ingenuo! ¿Cómo pretendes manipular el caos sin especificar su destino y magnitud?"
	msgInvalidTransfer  = "Usuario o cantidad inválidos."
	msgSelfTransfer     = "El caos no fluye hacia sí mismo. Elige otro destino."
	msgInsufficient     = "¡Insensato! No puedes manipular el caos que no posees."
	msgBusy             = "El caos aún procesa tu última petición. Inténtalo de nuevo en un instante."
	msgUnknownCommand   = "El caos no reconoce tu comando... Intenta algo más... caótico."
)

func randomPhrase(phrases []string) string {
	return phrases[rand.IntN(len(phrases))]
}
