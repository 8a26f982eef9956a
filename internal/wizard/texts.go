package wizard

import (
	"fmt"
	"strings"

	"listing-wizard/internal/domain"
)

type textKey string

const (
	textWelcome          textKey = "welcome"
	textPropertyType     textKey = "property_type"
	textFeatures         textKey = "features"
	textHighlights       textKey = "highlights"
	textAudience         textKey = "audience"
	textPersona          textKey = "persona"
	textQuestions        textKey = "questions"
	textAnswers          textKey = "answers"
	textReady            textKey = "ready"
	textReadyHint        textKey = "ready_hint"
	textFinal            textKey = "final"
	textCompleted        textKey = "completed"
	textIssue            textKey = "issue"
	textUpdated          textKey = "updated"
	textRegenerated      textKey = "regenerated"
	textClarifyPersona   textKey = "clarify_persona"
	textClarifyQuestions textKey = "clarify_questions"
	textClarifyAnswers   textKey = "clarify_answers"
	textOutOfOrder       textKey = "out_of_order"

	textRejectTransaction  textKey = "reject_transaction"
	textRejectPropertyType textKey = "reject_property_type"
	textRejectFeatures     textKey = "reject_features"
	textRejectHighlights   textKey = "reject_highlights"
	textRejectAudience     textKey = "reject_audience"
	textRejectPersona      textKey = "reject_persona"
	textRejectQuestions    textKey = "reject_questions"
	textRejectAnswers      textKey = "reject_answers"
)

var texts = map[domain.Language]map[textKey]string{
	domain.LanguageEN: {
		textWelcome:          "Welcome to WoningTovenaar! I'll help you create a compelling property listing step by step.\n\nFirst, let me know: Are you looking to **sale** or **rent** this property?",
		textPropertyType:     "Perfect! Now, what type of property are we working with?\n\nFor example: apartment, house, studio, villa, townhouse, etc.",
		textFeatures:         "Great choice! Now please provide the basic features and details of your property.\n\nInclude things like:\n• Size (m²)\n• Number of rooms/bedrooms\n• Year built\n• Special features (balcony, garden, parking, etc.)\n• Energy label\n• Any other important details",
		textHighlights:       "Excellent! Based on your property type, here are some highlights that might apply. Please select the ones that best describe your property and add any unique detail:",
		textAudience:         "Perfect! Now, who is your target audience?\n\nFor example:\n• First-time buyer\n• Young professional\n• Family with children\n• Investor\n• Senior citizen\n• Expat\n• Student\n\nBe as specific as possible - this helps me tailor the message perfectly!",
		textPersona:          "Fantastic! Here's the detailed buyer persona I've created based on your target audience. This will guide how we craft your listing:",
		textQuestions:        "Excellent! Based on your target audience, here are the top 10 questions they typically have when looking at properties like yours:",
		textAnswers:          "Perfect! Here are compelling answers to those questions, specifically crafted for your property:",
		textReady:            "Outstanding! We now have everything needed to create your professional property listing.\n\nWhen you're ready, click the button below to generate your final listing text:",
		textReadyHint:        "You're all set! Your listing will incorporate:\n• Your property details\n• Selected highlights\n• Target audience insights\n• Persona-driven messaging\n• Answers to key buyer questions\n\nClick 'Generate Final Property Listing' when ready!",
		textFinal:            "Here is your professionally crafted property listing! 🎉\n\nThis listing includes all your specific details and is designed to attract your target audience effectively.",
		textCompleted:        "This listing session is already completed. Start a new session to create another listing.",
		textIssue:            "I encountered an issue, please try again.",
		textUpdated:          "Thanks, I've saved your changes.",
		textRegenerated:      "Here is a fresh version:",
		textClarifyPersona:   "Please approve the persona, edit it, or ask me to regenerate it.",
		textClarifyQuestions: "Please approve the questions, edit them, or ask me to regenerate them.",
		textClarifyAnswers:   "Please approve the answers, edit them, or ask me to regenerate them.",
		textOutOfOrder:       "Let's take it one step at a time: persona first, then the questions, then the answers.",

		textRejectTransaction:  "Please answer with **sale** or **rent**.",
		textRejectPropertyType: "Please tell me the type of property, for example apartment, house, studio or villa.",
		textRejectFeatures:     "Could you give me a bit more detail about the property? At least a sentence helps me write a good listing.",
		textRejectHighlights:   "Please select at least one highlight.",
		textRejectAudience:     "Please describe your target audience, for example \"family with children\".",
		textRejectPersona:      "The updated persona must not be empty.",
		textRejectQuestions:    "The updated questions must not be empty and must keep the same number as the answers.",
		textRejectAnswers:      "Please provide exactly one answer for each question.",
	},
	domain.LanguageNL: {
		textWelcome:          "Welkom bij WoningTovenaar! Ik help je stap voor stap een overtuigende woningtekst te maken.\n\nLaat me eerst weten: wil je deze woning **verkopen** of **verhuren**?",
		textPropertyType:     "Perfect! Om wat voor woning gaat het?\n\nBijvoorbeeld: appartement, huis, studio, villa, rijtjeshuis, enz.",
		textFeatures:         "Goede keuze! Beschrijf nu de belangrijkste kenmerken van de woning.\n\nDenk aan:\n• Oppervlakte (m²)\n• Aantal kamers/slaapkamers\n• Bouwjaar\n• Bijzonderheden (balkon, tuin, parkeren, enz.)\n• Energielabel\n• Andere belangrijke details",
		textHighlights:       "Uitstekend! Op basis van het woningtype zijn dit highlights die van toepassing kunnen zijn. Kies de punten die de woning het best beschrijven en voeg een uniek detail toe:",
		textAudience:         "Perfect! Wie is je doelgroep?\n\nBijvoorbeeld:\n• Starter\n• Young professional\n• Gezin met kinderen\n• Belegger\n• Senior\n• Expat\n• Student\n\nWees zo specifiek mogelijk, dan kan ik de tekst goed afstemmen!",
		textPersona:          "Fantastisch! Dit is de koperspersona die ik op basis van je doelgroep heb gemaakt. Hiermee stemmen we de tekst af:",
		textQuestions:        "Uitstekend! Dit zijn de 10 vragen die je doelgroep meestal heeft bij een woning zoals deze:",
		textAnswers:          "Perfect! Hier zijn overtuigende antwoorden op die vragen, speciaal voor jouw woning:",
		textReady:            "Geweldig! We hebben nu alles om je professionele woningtekst te maken.\n\nKlik hieronder zodra je klaar bent om de definitieve tekst te genereren:",
		textReadyHint:        "Alles staat klaar! Je tekst bevat:\n• De kenmerken van de woning\n• De gekozen highlights\n• Inzichten over je doelgroep\n• Persona-gerichte boodschap\n• Antwoorden op de belangrijkste vragen\n\nKlik op 'Genereer definitieve woningtekst' wanneer je klaar bent!",
		textFinal:            "Hier is je professionele woningtekst! 🎉\n\nDeze tekst bevat alle details van je woning en is geschreven om je doelgroep aan te spreken.",
		textCompleted:        "Deze sessie is al afgerond. Start een nieuwe sessie voor een nieuwe woningtekst.",
		textIssue:            "Er ging iets mis, probeer het opnieuw.",
		textUpdated:          "Bedankt, je wijzigingen zijn opgeslagen.",
		textRegenerated:      "Hier is een nieuwe versie:",
		textClarifyPersona:   "Keur de persona goed, pas hem aan of vraag om een nieuwe versie.",
		textClarifyQuestions: "Keur de vragen goed, pas ze aan of vraag om een nieuwe versie.",
		textClarifyAnswers:   "Keur de antwoorden goed, pas ze aan of vraag om een nieuwe versie.",
		textOutOfOrder:       "We doen het stap voor stap: eerst de persona, dan de vragen en daarna de antwoorden.",

		textRejectTransaction:  "Antwoord met **koop** of **huur**.",
		textRejectPropertyType: "Vertel me om wat voor woning het gaat, bijvoorbeeld appartement, huis, studio of villa.",
		textRejectFeatures:     "Kun je iets meer vertellen over de woning? Minstens een zin helpt me een goede tekst te schrijven.",
		textRejectHighlights:   "Kies minstens één highlight.",
		textRejectAudience:     "Beschrijf je doelgroep, bijvoorbeeld \"gezin met kinderen\".",
		textRejectPersona:      "De aangepaste persona mag niet leeg zijn.",
		textRejectQuestions:    "De aangepaste vragen mogen niet leeg zijn en moeten even talrijk zijn als de antwoorden.",
		textRejectAnswers:      "Geef precies één antwoord per vraag.",
	},
}

// SupportedLanguage reports whether the wizard has texts for lang.
func SupportedLanguage(lang domain.Language) bool {
	_, ok := texts[lang]
	return ok
}

func text(lang domain.Language, key textKey) string {
	if t, ok := texts[lang][key]; ok {
		return t
	}
	return texts[domain.LanguageEN][key]
}

// Welcome is the first assistant message of a new session.
func Welcome(lang domain.Language) string {
	return text(lang, textWelcome)
}

// AlreadyCompleted is returned for step requests against a terminal session.
func AlreadyCompleted(lang domain.Language) string {
	return text(lang, textCompleted)
}

func bulletList(items []string) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString("• ")
		b.WriteString(it)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func numberedList(items []string) string {
	var b strings.Builder
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, it)
	}
	return strings.TrimRight(b.String(), "\n")
}

func questionsAndAnswers(questions, answers []string) string {
	var b strings.Builder
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
		if i < len(answers) {
			fmt.Fprintf(&b, "   %s\n", answers[i])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
